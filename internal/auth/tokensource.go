package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dvloznov/monzo-export/internal/logger"
	"golang.org/x/oauth2"
)

// persistingSource saves every newly refreshed token to the store.
type persistingSource struct {
	ctx   context.Context
	base  oauth2.TokenSource
	store CredentialStore

	mu    sync.Mutex
	creds Credentials
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, classify("refreshing access token", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken == s.creds.AccessToken {
		return tok, nil
	}

	s.creds = s.creds.WithToken(tok)
	if err := s.store.Save(s.creds); err != nil {
		return nil, fmt.Errorf("saving refreshed token: %w", err)
	}
	log := logger.FromContext(s.ctx)
	log.Info().Time("expiry", tok.Expiry).Msg("Access token refreshed and saved")
	return tok, nil
}

// TokenSource returns a source that starts from the stored token, refreshes
// it when it expires and writes each refreshed pair back to store.
func TokenSource(ctx context.Context, conf *oauth2.Config, store CredentialStore, creds Credentials) oauth2.TokenSource {
	return &persistingSource{
		ctx:   ctx,
		base:  conf.TokenSource(ctx, creds.Token()),
		store: store,
		creds: creds,
	}
}

// HTTPClient returns a client that authorizes every request with the
// current access token.
func HTTPClient(ctx context.Context, conf *oauth2.Config, store CredentialStore, creds Credentials) *http.Client {
	return oauth2.NewClient(ctx, TokenSource(ctx, conf, store, creds))
}
