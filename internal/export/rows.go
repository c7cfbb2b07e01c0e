package export

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/monzo-export/internal/table"
	"github.com/shopspring/decimal"
)

// Owner types of a balance snapshot.
const (
	OwnerAccount = "account"
	OwnerPot     = "pot"
)

type AccountRow struct {
	AccountID   string
	AccountType string
	Description string
	Currency    string
	Created     time.Time
	Closed      bool
}

func (r AccountRow) Values() []any {
	return []any{r.AccountID, r.AccountType, r.Description, r.Currency, r.Created, r.Closed}
}

type PotRow struct {
	PotID       string
	AccountID   string
	PotName     string
	PotType     string
	PotBalance  decimal.Decimal
	PotCurrency string
	GoalAmount  *decimal.Decimal
	Created     time.Time
	Updated     time.Time
	Deleted     bool
}

func (r PotRow) Values() []any {
	return []any{
		r.PotID, r.AccountID, r.PotName, r.PotType, r.PotBalance, r.PotCurrency,
		table.Opt(r.GoalAmount), r.Created, r.Updated, r.Deleted,
	}
}

type TransactionRow struct {
	TransactionID string
	AccountID     string
	Created       time.Time
	Description   string
	GBPAmount     decimal.Decimal
	Currency      string
	LocalAmount   decimal.Decimal
	LocalCurrency string
	Category      string
	Notes         *string
	DeclineReason *string
	MerchantID    *string
	PotID         *string
	IsLoad        bool
	Settled       *time.Time
}

func (r TransactionRow) Values() []any {
	return []any{
		r.TransactionID, r.AccountID, r.Created, r.Description, r.GBPAmount, r.Currency,
		r.LocalAmount, r.LocalCurrency, r.Category, table.Opt(r.Notes), table.Opt(r.DeclineReason),
		table.Opt(r.MerchantID), table.Opt(r.PotID), r.IsLoad, table.Opt(r.Settled),
	}
}

type MerchantRow struct {
	MerchantID   string
	GroupID      string
	MerchantName string
	Category     string
	Latitude     *float64
	Longitude    *float64
	City         *string
	Country      *string
	Postcode     *string
	IsOnline     bool
	IsATM        bool
}

func (r MerchantRow) Values() []any {
	return []any{
		r.MerchantID, r.GroupID, r.MerchantName, r.Category,
		table.Opt(r.Latitude), table.Opt(r.Longitude), table.Opt(r.City), table.Opt(r.Country), table.Opt(r.Postcode),
		r.IsOnline, r.IsATM,
	}
}

type MerchantGroupRow struct {
	GroupID           string
	MerchantGroupName string
	Logo              *string
}

func (r MerchantGroupRow) Values() []any {
	return []any{r.GroupID, r.MerchantGroupName, table.Opt(r.Logo)}
}

type BalanceRow struct {
	OwnerID   string
	OwnerType string
	Date      civil.Date
	Balance   decimal.Decimal
	Currency  string
	FetchedAt time.Time
}

func (r BalanceRow) Values() []any {
	return []any{r.OwnerID, r.OwnerType, r.Date, r.Balance, r.Currency, r.FetchedAt}
}

// cursor reads row values in column order and remembers the first error.
type cursor struct {
	vals []any
	i    int
	err  error
}

func field[T any](c *cursor) T {
	i := c.i
	c.i++
	v, err := table.Get[T](c.vals, i)
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func optField[T any](c *cursor) *T {
	i := c.i
	c.i++
	v, err := table.GetOpt[T](c.vals, i)
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func (c *cursor) done(want int) error {
	if c.err != nil {
		return c.err
	}
	if len(c.vals) != want {
		return fmt.Errorf("%d values for %d columns: %w", len(c.vals), want, table.ErrSchemaMismatch)
	}
	return nil
}

func decodeAccount(vals []any) (AccountRow, error) {
	c := &cursor{vals: vals}
	r := AccountRow{
		AccountID:   field[string](c),
		AccountType: field[string](c),
		Description: field[string](c),
		Currency:    field[string](c),
		Created:     field[time.Time](c),
		Closed:      field[bool](c),
	}
	return r, c.done(len(AccountsSchema.Columns))
}

func decodePot(vals []any) (PotRow, error) {
	c := &cursor{vals: vals}
	r := PotRow{
		PotID:       field[string](c),
		AccountID:   field[string](c),
		PotName:     field[string](c),
		PotType:     field[string](c),
		PotBalance:  field[decimal.Decimal](c),
		PotCurrency: field[string](c),
		GoalAmount:  optField[decimal.Decimal](c),
		Created:     field[time.Time](c),
		Updated:     field[time.Time](c),
		Deleted:     field[bool](c),
	}
	return r, c.done(len(PotsSchema.Columns))
}

func decodeTransaction(vals []any) (TransactionRow, error) {
	c := &cursor{vals: vals}
	r := TransactionRow{
		TransactionID: field[string](c),
		AccountID:     field[string](c),
		Created:       field[time.Time](c),
		Description:   field[string](c),
		GBPAmount:     field[decimal.Decimal](c),
		Currency:      field[string](c),
		LocalAmount:   field[decimal.Decimal](c),
		LocalCurrency: field[string](c),
		Category:      field[string](c),
		Notes:         optField[string](c),
		DeclineReason: optField[string](c),
		MerchantID:    optField[string](c),
		PotID:         optField[string](c),
		IsLoad:        field[bool](c),
		Settled:       optField[time.Time](c),
	}
	return r, c.done(len(TransactionsSchema.Columns))
}

func decodeMerchant(vals []any) (MerchantRow, error) {
	c := &cursor{vals: vals}
	r := MerchantRow{
		MerchantID:   field[string](c),
		GroupID:      field[string](c),
		MerchantName: field[string](c),
		Category:     field[string](c),
		Latitude:     optField[float64](c),
		Longitude:    optField[float64](c),
		City:         optField[string](c),
		Country:      optField[string](c),
		Postcode:     optField[string](c),
		IsOnline:     field[bool](c),
		IsATM:        field[bool](c),
	}
	return r, c.done(len(MerchantsSchema.Columns))
}

func decodeGroup(vals []any) (MerchantGroupRow, error) {
	c := &cursor{vals: vals}
	r := MerchantGroupRow{
		GroupID:           field[string](c),
		MerchantGroupName: field[string](c),
		Logo:              optField[string](c),
	}
	return r, c.done(len(GroupsSchema.Columns))
}

func decodeBalance(vals []any) (BalanceRow, error) {
	c := &cursor{vals: vals}
	r := BalanceRow{
		OwnerID:   field[string](c),
		OwnerType: field[string](c),
		Date:      field[civil.Date](c),
		Balance:   field[decimal.Decimal](c),
		Currency:  field[string](c),
		FetchedAt: field[time.Time](c),
	}
	return r, c.done(len(BalancesSchema.Columns))
}

// Entity ties a schema to the decoder for its row type.
type Entity[R table.Record] struct {
	Schema *table.Schema
	Decode func([]any) (R, error)
}

var (
	Accounts     = Entity[AccountRow]{Schema: AccountsSchema, Decode: decodeAccount}
	Pots         = Entity[PotRow]{Schema: PotsSchema, Decode: decodePot}
	Transactions = Entity[TransactionRow]{Schema: TransactionsSchema, Decode: decodeTransaction}
	Merchants    = Entity[MerchantRow]{Schema: MerchantsSchema, Decode: decodeMerchant}
	Groups       = Entity[MerchantGroupRow]{Schema: GroupsSchema, Decode: decodeGroup}
	Balances     = Entity[BalanceRow]{Schema: BalancesSchema, Decode: decodeBalance}
)
