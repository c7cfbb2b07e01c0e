package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

// Credentials are the client settings plus the token pair obtained for them.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// HasToken reports whether an access token has been obtained before.
func (c Credentials) HasToken() bool {
	return c.AccessToken != ""
}

// Token converts the stored pair to an oauth2 token.
func (c Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// WithToken returns a copy of c carrying tok. An empty refresh token keeps the old one.
func (c Credentials) WithToken(tok *oauth2.Token) Credentials {
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.Expiry = tok.Expiry
	return c
}

// CredentialStore persists credentials between runs.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
}

const (
	keyClientID     = "CLIENT_ID"
	keyClientSecret = "CLIENT_SECRET"
	keyAccessToken  = "ACCESS_TOKEN"
	keyRefreshToken = "REFRESH_TOKEN"
	keyExpiry       = "EXPIRY"
)

// DotenvStore keeps credentials in a dotenv file next to the rest of the
// configuration. Values in the file win over the environment so that a
// refreshed token is picked up on the next run.
type DotenvStore struct {
	Path   string
	Getenv func(string) string
}

// NewDotenvStore returns a store backed by path. getenv supplies fallbacks
// for keys the file does not set; it may be nil.
func NewDotenvStore(path string, getenv func(string) string) *DotenvStore {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &DotenvStore{Path: path, Getenv: getenv}
}

func (s *DotenvStore) read() (map[string]string, error) {
	vals, err := godotenv.Read(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (s *DotenvStore) Load() (Credentials, error) {
	vals, err := s.read()
	if err != nil {
		return Credentials{}, fmt.Errorf("DotenvStore.Load: reading %s: %w", s.Path, err)
	}

	get := func(key string) string {
		if v := strings.TrimSpace(vals[key]); v != "" {
			return v
		}
		return strings.TrimSpace(s.Getenv(key))
	}

	creds := Credentials{
		ClientID:     get(keyClientID),
		ClientSecret: get(keyClientSecret),
		AccessToken:  get(keyAccessToken),
		RefreshToken: get(keyRefreshToken),
	}
	if raw := get(keyExpiry); raw != "" {
		creds.Expiry, err = parseExpiry(raw)
		if err != nil {
			return Credentials{}, fmt.Errorf("DotenvStore.Load: %s: %w", keyExpiry, err)
		}
	}
	return creds, nil
}

// Save rewrites the file with the credential keys updated. Other keys are kept.
func (s *DotenvStore) Save(c Credentials) error {
	vals, err := s.read()
	if err != nil {
		return fmt.Errorf("DotenvStore.Save: reading %s: %w", s.Path, err)
	}

	vals[keyClientID] = c.ClientID
	vals[keyClientSecret] = c.ClientSecret
	vals[keyAccessToken] = c.AccessToken
	vals[keyRefreshToken] = c.RefreshToken
	vals[keyExpiry] = ""
	if !c.Expiry.IsZero() {
		vals[keyExpiry] = strconv.FormatInt(c.Expiry.Unix(), 10)
	}

	if err := godotenv.Write(vals, s.Path); err != nil {
		return fmt.Errorf("DotenvStore.Save: writing %s: %w", s.Path, err)
	}
	return nil
}

// parseExpiry accepts unix seconds, with or without a fractional part.
func parseExpiry(raw string) (time.Time, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("expected unix seconds, got %q", raw)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
