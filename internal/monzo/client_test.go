package monzo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), WithBaseURL(srv.URL))
}

func TestListAccounts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"accounts":[{"id":"acc_1","description":"user_1","type":"uk_retail","currency":"GBP","created":"2020-01-02T03:04:05.678Z","closed":false}]}`)
	})

	accounts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc_1" || accounts[0].Type != "uk_retail" {
		t.Errorf("unexpected accounts %+v", accounts)
	}
	if accounts[0].Created.Year() != 2020 {
		t.Errorf("Created = %v", accounts[0].Created)
	}
}

func TestGetBalanceAndPots(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/balance":
			if r.URL.Query().Get("account_id") != "acc_1" {
				t.Errorf("balance query = %v", r.URL.Query())
			}
			fmt.Fprint(w, `{"balance":12345,"total_balance":22345,"currency":"GBP","spend_today":-500}`)
		case "/pots":
			if r.URL.Query().Get("current_account_id") != "acc_1" {
				t.Errorf("pots query = %v", r.URL.Query())
			}
			fmt.Fprint(w, `{"pots":[{"id":"pot_1","name":"Holiday","balance":10000,"currency":"GBP","goal_amount":50000,"created":"2021-01-01T00:00:00Z","updated":"2021-02-01T00:00:00Z","deleted":false},{"id":"pot_2","name":"Old","balance":0,"currency":"GBP","goal_amount":null,"created":"2021-01-01T00:00:00Z","updated":"2021-01-01T00:00:00Z","deleted":true}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	bal, err := c.GetBalance(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal.Balance != 12345 || bal.TotalBalance != 22345 {
		t.Errorf("unexpected balance %+v", bal)
	}

	pots, err := c.ListPots(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("ListPots() error = %v", err)
	}
	if len(pots) != 2 || pots[0].GoalAmount == nil || *pots[0].GoalAmount != 50000 || pots[1].GoalAmount != nil || !pots[1].Deleted {
		t.Errorf("unexpected pots %+v", pots)
	}
}

func TestListTransactions_Paginates(t *testing.T) {
	var cursors []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("expand[]") != "merchant" || q.Get("limit") != "100" {
			t.Errorf("unexpected query %v", q)
		}
		cursors = append(cursors, q.Get("since"))

		n := pageSize
		if len(cursors) == 2 {
			n = 3
		}
		txs := make([]map[string]any, n)
		for i := range txs {
			txs[i] = map[string]any{
				"id":         fmt.Sprintf("tx_%d_%d", len(cursors), i),
				"account_id": "acc_1",
				"created":    "2024-01-01T00:00:00Z",
				"amount":     -100,
				"merchant":   nil,
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"transactions": txs})
	})

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	txs, err := c.ListTransactions(context.Background(), "acc_1", since)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != pageSize+3 {
		t.Errorf("got %d transactions, want %d", len(txs), pageSize+3)
	}
	if len(cursors) != 2 || cursors[0] != "2024-01-01T00:00:00Z" || cursors[1] != "tx_1_99" {
		t.Errorf("cursors = %v", cursors)
	}
}

func TestMerchantRef_Unmarshal(t *testing.T) {
	tests := []struct {
		name        string
		json        string
		wantID      string
		wantDetails bool
	}{
		{"null", `{"merchant":null}`, "", false},
		{"absent", `{}`, "", false},
		{"id only", `{"merchant":"merch_1"}`, "merch_1", false},
		{"expanded", `{"merchant":{"id":"merch_2","group_id":"grp_2","name":"Cafe","address":{"city":"London","latitude":51.5}}}`, "merch_2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx Transaction
			if err := json.Unmarshal([]byte(tt.json), &tx); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if tx.Merchant.ID != tt.wantID || (tx.Merchant.Details != nil) != tt.wantDetails {
				t.Errorf("Merchant = %+v", tx.Merchant)
			}
		})
	}

	var tx Transaction
	if err := json.Unmarshal([]byte(`{"merchant":42}`), &tx); err == nil {
		t.Error("expected error for numeric merchant")
	}
}

func TestSettledAt(t *testing.T) {
	pending := Transaction{ID: "tx_1"}
	if at, err := pending.SettledAt(); at != nil || err != nil {
		t.Errorf("SettledAt() = %v, %v", at, err)
	}

	settled := Transaction{ID: "tx_2", Settled: "2024-01-02T10:00:00.123Z"}
	at, err := settled.SettledAt()
	if err != nil || at == nil || at.Day() != 2 {
		t.Errorf("SettledAt() = %v, %v", at, err)
	}

	bad := Transaction{ID: "tx_3", Settled: "yesterday"}
	if _, err := bad.SettledAt(); err == nil {
		t.Error("expected error")
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"server error", http.StatusInternalServerError, ErrServiceUnavailable},
		{"unavailable", http.StatusServiceUnavailable, ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"code":"some.code","message":"something"}`)
			})

			_, err := c.ListAccounts(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Code != "some.code" {
				t.Errorf("expected APIError with code, got %v", err)
			}
		})
	}
}

func TestErrors_BadRequestIsNeitherClass(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.ListAccounts(context.Background())
	if err == nil || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v", err)
	}
}

func TestErrors_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(srv.Client(), WithBaseURL(srv.URL))
	srv.Close()

	_, err := c.ListAccounts(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v, want ErrServiceUnavailable", err)
	}
}
