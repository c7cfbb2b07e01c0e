package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

type memoryStore struct {
	saved   []Credentials
	saveErr error
}

func (m *memoryStore) Load() (Credentials, error) {
	if len(m.saved) == 0 {
		return Credentials{}, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memoryStore) Save(c Credentials) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, c)
	return nil
}

// tokenServer answers token requests with status, or with a fresh token pair
// named after the grant type when status is 200.
func tokenServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("client credentials not sent in body: %v", r.PostForm)
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":"nope"}`, status)
			return
		}
		grant := r.PostForm.Get("grant_type")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + grant,
			"refresh_token": "refresh-" + grant,
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	conf := NewOAuthConfig("client", "secret", "http://127.0.0.1/monzo")
	conf.Endpoint.TokenURL = tokenURL
	return conf
}

func TestParseRedirect(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCode  string
		wantState string
		wantErr   error
		anyErr    bool
	}{
		{"ok", "http://127.0.0.1/monzo?code=abc&state=xyz", "abc", "xyz", nil, false},
		{"param order", "http://127.0.0.1/monzo?state=xyz&code=abc", "abc", "xyz", nil, false},
		{"escaped", "http://127.0.0.1/monzo?code=a%2Bb&state=s", "a+b", "s", nil, false},
		{"denied", "http://127.0.0.1/monzo?error=access_denied", "", "", ErrAuthentication, true},
		{"no code", "http://127.0.0.1/monzo?state=xyz", "", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, state, err := ParseRedirect(tt.raw)
			if (err != nil) != tt.anyErr {
				t.Fatalf("ParseRedirect() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseRedirect() error = %v, want %v", err, tt.wantErr)
			}
			if code != tt.wantCode || state != tt.wantState {
				t.Errorf("ParseRedirect() = (%q, %q), want (%q, %q)", code, state, tt.wantCode, tt.wantState)
			}
		})
	}
}

func TestNewOAuthConfig_AuthCodeURL(t *testing.T) {
	conf := NewOAuthConfig("client", "secret", "http://127.0.0.1/monzo")
	u, err := url.Parse(conf.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "auth.monzo.com" {
		t.Errorf("host = %q", u.Host)
	}
	q := u.Query()
	if q.Get("client_id") != "client" || q.Get("state") != "state-1" || q.Get("response_type") != "code" {
		t.Errorf("unexpected query %v", q)
	}
	if NewState() == NewState() {
		t.Error("NewState() should not repeat")
	}
}

func TestExchange(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		state   string
		wantErr error
	}{
		{"success", http.StatusOK, "s1", nil},
		{"state mismatch", http.StatusOK, "other", ErrStateMismatch},
		{"rejected", http.StatusUnauthorized, "s1", ErrAuthentication},
		{"server error", http.StatusServiceUnavailable, "s1", ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tokenServer(t, tt.status)
			creds, err := Exchange(context.Background(), testConfig(srv.URL), "code", tt.state, "s1")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Exchange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exchange() error = %v", err)
			}
			if creds.AccessToken != "access-authorization_code" || creds.RefreshToken != "refresh-authorization_code" {
				t.Errorf("unexpected tokens %+v", creds)
			}
			if creds.ClientID != "client" || creds.Expiry.IsZero() {
				t.Errorf("unexpected credentials %+v", creds)
			}
		})
	}
}

func TestExchange_Unreachable(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	tokenURL := srv.URL
	srv.Close()

	_, err := Exchange(context.Background(), testConfig(tokenURL), "code", "s", "s")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Exchange() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestLogin(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	conf := testConfig(srv.URL)
	store := &memoryStore{}

	src := func(ctx context.Context, authURL string) (string, error) {
		u, err := url.Parse(authURL)
		if err != nil {
			return "", err
		}
		return "http://127.0.0.1/monzo?code=abc&state=" + u.Query().Get("state"), nil
	}

	creds, err := Login(context.Background(), conf, store, src)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].AccessToken != creds.AccessToken {
		t.Errorf("credentials not saved: %+v", store.saved)
	}
}

func TestLogin_StateMismatchSavesNothing(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	store := &memoryStore{}

	src := func(ctx context.Context, authURL string) (string, error) {
		return "http://127.0.0.1/monzo?code=abc&state=forged", nil
	}

	_, err := Login(context.Background(), testConfig(srv.URL), store, src)
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Login() error = %v, want ErrStateMismatch", err)
	}
	if len(store.saved) != 0 {
		t.Error("nothing should be saved after a state mismatch")
	}
}

func TestTokenSource_PersistsRefreshedToken(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	store := &memoryStore{}
	creds := Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		AccessToken:  "stale",
		RefreshToken: "refresh-0",
		Expiry:       time.Now().Add(-time.Hour),
	}

	ts := TokenSource(context.Background(), testConfig(srv.URL), store, creds)

	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "access-refresh_token" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if len(store.saved) != 1 || store.saved[0].RefreshToken != "refresh-refresh_token" {
		t.Fatalf("refreshed token not saved: %+v", store.saved)
	}

	// A cached token is not saved again.
	if _, err := ts.Token(); err != nil {
		t.Fatal(err)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d times, want 1", len(store.saved))
	}
}

func TestTokenSource_ValidTokenNotSaved(t *testing.T) {
	store := &memoryStore{}
	creds := Credentials{AccessToken: "good", Expiry: time.Now().Add(time.Hour)}

	tok, err := TokenSource(context.Background(), testConfig("http://unused.invalid"), store, creds).Token()
	if err != nil || tok.AccessToken != "good" {
		t.Fatalf("Token() = %v, %v", tok, err)
	}
	if len(store.saved) != 0 {
		t.Error("an unchanged token should not be saved")
	}
}

func TestTokenSource_RejectedRefresh(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest)
	creds := Credentials{ClientID: "client", ClientSecret: "secret", AccessToken: "stale", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}

	_, err := TokenSource(context.Background(), testConfig(srv.URL), &memoryStore{}, creds).Token()
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("Token() error = %v, want ErrAuthentication", err)
	}
}

func TestDotenvStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STORAGE_ROOT=data\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewDotenvStore(path, nil)

	want := Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Unix(1700000000, 0).UTC(),
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	content, _ := os.ReadFile(path)
	if !strings.Contains(string(content), "STORAGE_ROOT") {
		t.Errorf("unrelated keys should be kept, got:\n%s", content)
	}
}

func TestDotenvStore_FileWinsOverEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ACCESS_TOKEN=from-file\nEXPIRY=1700000000.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"ACCESS_TOKEN": "from-env", "CLIENT_ID": "env-client"}
	store := NewDotenvStore(path, func(k string) string { return env[k] })

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "from-file" || got.ClientID != "env-client" {
		t.Errorf("Load() = %+v", got)
	}
	if !got.Expiry.Equal(time.Unix(1700000000, 500000000)) {
		t.Errorf("Expiry = %v", got.Expiry)
	}
}

func TestDotenvStore_MissingFileAndBadExpiry(t *testing.T) {
	dir := t.TempDir()

	got, err := NewDotenvStore(filepath.Join(dir, "absent.env"), nil).Load()
	if err != nil || got.HasToken() {
		t.Errorf("Load() = %+v, %v; want empty credentials", got, err)
	}

	path := filepath.Join(dir, ".env")
	os.WriteFile(path, []byte("EXPIRY=tomorrow\n"), 0o600)
	if _, err := NewDotenvStore(path, nil).Load(); err == nil {
		t.Error("expected error for non-numeric EXPIRY")
	}
}

func TestCallbackServer(t *testing.T) {
	srv, err := NewCallbackServer("127.0.0.1:0", "/monzo", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCallbackServer() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		redirect, err := srv.Wait(ctx)
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
		done <- redirect
	}()

	base := fmt.Sprintf("http://%s/monzo", srv.Addr())

	resp, err := http.Get(base)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status without code = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(base + "?code=abc&state=xyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	redirect := <-done
	code, state, err := ParseRedirect(redirect)
	if err != nil || code != "abc" || state != "xyz" {
		t.Errorf("redirect %q parsed to (%q, %q, %v)", redirect, code, state, err)
	}
}

func TestCallbackServer_ContextCancelled(t *testing.T) {
	srv, err := NewCallbackServer("127.0.0.1:0", "/monzo", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := srv.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
