package auth

import (
	"context"
	"fmt"

	"github.com/dvloznov/monzo-export/internal/logger"
	"golang.org/x/oauth2"
)

// RedirectSource shows authURL to the user and returns the URL the browser
// was redirected to once access was approved.
type RedirectSource func(ctx context.Context, authURL string) (string, error)

// Login runs the authorization-code flow end to end: it issues a state token,
// obtains the redirect from src, checks the state, exchanges the code and
// saves the resulting credentials to store.
func Login(ctx context.Context, conf *oauth2.Config, store CredentialStore, src RedirectSource) (Credentials, error) {
	log := logger.FromContext(ctx)

	state := NewState()
	redirect, err := src(ctx, conf.AuthCodeURL(state))
	if err != nil {
		return Credentials{}, fmt.Errorf("Login: waiting for redirect: %w", err)
	}

	code, gotState, err := ParseRedirect(redirect)
	if err != nil {
		return Credentials{}, fmt.Errorf("Login: %w", err)
	}

	creds, err := Exchange(ctx, conf, code, gotState, state)
	if err != nil {
		return Credentials{}, fmt.Errorf("Login: %w", err)
	}

	if err := store.Save(creds); err != nil {
		return Credentials{}, fmt.Errorf("Login: saving credentials: %w", err)
	}

	log.Info().Time("expiry", creds.Expiry).Msg("Access token obtained and saved")
	return creds, nil
}

// Exchange trades an authorization code for a token pair after checking that
// the returned state matches the one that was issued.
func Exchange(ctx context.Context, conf *oauth2.Config, code, gotState, wantState string) (Credentials, error) {
	if gotState != wantState {
		return Credentials{}, fmt.Errorf("Exchange: %w", ErrStateMismatch)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return Credentials{}, classify("Exchange", err)
	}

	creds := Credentials{ClientID: conf.ClientID, ClientSecret: conf.ClientSecret}
	return creds.WithToken(tok), nil
}
