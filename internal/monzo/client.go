// Package monzo is a small read-only client for the Monzo API.
package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dvloznov/monzo-export/internal/logger"
)

// DefaultBaseURL is the production API.
const DefaultBaseURL = "https://api.monzo.com"

// pageSize is the maximum page the transactions endpoint serves.
const pageSize = 100

var (
	// ErrUnauthorized means the access token was rejected or lacks permission.
	ErrUnauthorized = errors.New("monzo: unauthorized")

	// ErrServiceUnavailable means the API answered with a 5xx or could not be reached.
	ErrServiceUnavailable = errors.New("monzo: service unavailable")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("monzo: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("monzo: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap lets callers match the error class with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

// Client calls the API with an HTTP client that already carries the bearer
// token, such as the one from auth.HTTPClient.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a client over httpClient.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{httpClient: httpClient, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// transportError marks network failures as service unavailable. Failures
// raised by the token source keep their own classification.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	inner := err
	var ue *url.Error
	if errors.As(err, &ue) {
		inner = ue.Err
	}
	var netErr net.Error
	if errors.As(inner, &netErr) {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return err
}

// WhoAmI checks the access token.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmI, error) {
	var out WhoAmI
	if err := c.get(ctx, "/ping/whoami", nil, &out); err != nil {
		return nil, fmt.Errorf("WhoAmI: %w", err)
	}
	return &out, nil
}

// ListAccounts returns every account visible to the token.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.get(ctx, "/accounts", nil, &out); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return out.Accounts, nil
}

// GetBalance returns the current balance of an account.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	var out Balance
	q := url.Values{"account_id": {accountID}}
	if err := c.get(ctx, "/balance", q, &out); err != nil {
		return nil, fmt.Errorf("GetBalance %s: %w", accountID, err)
	}
	return &out, nil
}

// ListPots returns the pots attached to a current account, deleted ones included.
func (c *Client) ListPots(ctx context.Context, accountID string) ([]Pot, error) {
	var out struct {
		Pots []Pot `json:"pots"`
	}
	q := url.Values{"current_account_id": {accountID}}
	if err := c.get(ctx, "/pots", q, &out); err != nil {
		return nil, fmt.Errorf("ListPots %s: %w", accountID, err)
	}
	return out.Pots, nil
}

// ListTransactions returns the account's transactions created at or after
// since, oldest first, with merchants expanded. It pages until the API
// returns a short page.
func (c *Client) ListTransactions(ctx context.Context, accountID string, since time.Time) ([]Transaction, error) {
	log := logger.FromContext(ctx)

	cursor := since.UTC().Format(time.RFC3339)
	var all []Transaction
	for page := 1; ; page++ {
		q := url.Values{
			"account_id": {accountID},
			"expand[]":   {"merchant"},
			"limit":      {strconv.Itoa(pageSize)},
			"since":      {cursor},
		}

		var out struct {
			Transactions []Transaction `json:"transactions"`
		}
		if err := c.get(ctx, "/transactions", q, &out); err != nil {
			return nil, fmt.Errorf("ListTransactions %s page %d: %w", accountID, page, err)
		}

		all = append(all, out.Transactions...)
		log.Debug().
			Str("account_id", accountID).
			Int("page", page).
			Int("count", len(out.Transactions)).
			Msg("Fetched transactions page")

		if len(out.Transactions) < pageSize {
			return all, nil
		}
		// Subsequent pages start after the last transaction seen.
		cursor = out.Transactions[len(out.Transactions)-1].ID
	}
}
