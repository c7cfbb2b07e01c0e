// Package auth runs the Monzo OAuth2 handshake, persists the resulting
// credentials and refreshes access tokens on demand.
package auth

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	// ErrStateMismatch means the state returned with the redirect is not the one we issued.
	ErrStateMismatch = errors.New("authorization state does not match")

	// ErrAuthentication means Monzo rejected the client, the code or the refresh token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrServiceUnavailable means the token endpoint failed with a 5xx or could not be reached.
	ErrServiceUnavailable = errors.New("authentication service unavailable")
)

// Endpoint is Monzo's OAuth2 endpoint. Client credentials travel in the form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://auth.monzo.com/",
	TokenURL:  "https://api.monzo.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// NewOAuthConfig builds the client configuration for the given redirect URL.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     Endpoint,
	}
}

// NewState returns an unguessable state token for one authorization request.
func NewState() string {
	return uuid.NewString()
}

// ParseRedirect extracts the authorization code and state from the URL the
// browser was redirected to after the user approved access.
func ParseRedirect(raw string) (code, state string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("ParseRedirect: parsing redirect URL: %w", err)
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", "", fmt.Errorf("ParseRedirect: %w: %s %s", ErrAuthentication, e, q.Get("error_description"))
	}

	code = q.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("ParseRedirect: no code parameter in %q", raw)
	}
	return code, q.Get("state"), nil
}

// classify maps token endpoint failures onto the package sentinels.
func classify(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%s: %w: %v", op, ErrServiceUnavailable, err)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrAuthentication, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrAuthentication, err)
}
