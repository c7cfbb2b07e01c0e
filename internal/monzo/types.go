package monzo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Account is one Monzo account owned by the authenticated user.
type Account struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Currency    string    `json:"currency"`
	Created     time.Time `json:"created"`
	Closed      bool      `json:"closed"`
}

// Balance is an account balance in minor units.
type Balance struct {
	Balance      int64  `json:"balance"`
	TotalBalance int64  `json:"total_balance"`
	Currency     string `json:"currency"`
	SpendToday   int64  `json:"spend_today"`
}

// Pot is a savings pot attached to a current account. Amounts are minor units.
type Pot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Style            string    `json:"style"`
	Type             string    `json:"type"`
	Balance          int64     `json:"balance"`
	Currency         string    `json:"currency"`
	GoalAmount       *int64    `json:"goal_amount"`
	CurrentAccountID string    `json:"current_account_id"`
	Created          time.Time `json:"created"`
	Updated          time.Time `json:"updated"`
	Deleted          bool      `json:"deleted"`
}

// Address is where a merchant trades. It is absent for online merchants.
type Address struct {
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Postcode  string  `json:"postcode"`
	Region    string  `json:"region"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Merchant is the expanded merchant of a transaction.
type Merchant struct {
	ID       string   `json:"id"`
	GroupID  string   `json:"group_id"`
	Name     string   `json:"name"`
	Logo     string   `json:"logo"`
	Category string   `json:"category"`
	Online   bool     `json:"online"`
	ATM      bool     `json:"atm"`
	Address  *Address `json:"address"`
}

// MerchantRef is the transaction's merchant field. The API returns null, a
// bare merchant ID, or the full object when expand[]=merchant is requested.
type MerchantRef struct {
	ID      string
	Details *Merchant
}

func (m *MerchantRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*m = MerchantRef{}
		return nil
	case len(b) > 0 && b[0] == '"':
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*m = MerchantRef{ID: id}
		return nil
	case len(b) > 0 && b[0] == '{':
		var details Merchant
		if err := json.Unmarshal(b, &details); err != nil {
			return err
		}
		*m = MerchantRef{ID: details.ID, Details: &details}
		return nil
	default:
		return fmt.Errorf("merchant: unexpected JSON %s", b)
	}
}

// Transaction is one card payment, transfer or pot movement. Amounts are
// minor units; negative amounts are debits.
type Transaction struct {
	ID            string      `json:"id"`
	AccountID     string      `json:"account_id"`
	Created       time.Time   `json:"created"`
	Description   string      `json:"description"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	LocalAmount   int64       `json:"local_amount"`
	LocalCurrency string      `json:"local_currency"`
	Category      string      `json:"category"`
	Notes         string      `json:"notes"`
	DeclineReason string      `json:"decline_reason"`
	IsLoad        bool        `json:"is_load"`
	Settled       string      `json:"settled"`
	Merchant      MerchantRef `json:"merchant"`
}

// SettledAt parses the settlement time. Pending transactions return nil.
func (t Transaction) SettledAt() (*time.Time, error) {
	if t.Settled == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339Nano, t.Settled)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: settled %q: %w", t.ID, t.Settled, err)
	}
	return &at, nil
}

// WhoAmI describes the token in use.
type WhoAmI struct {
	Authenticated bool   `json:"authenticated"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
}
