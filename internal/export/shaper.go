package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/monzo-export/internal/monzo"
	"github.com/dvloznov/monzo-export/internal/table"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrMalformedRecord means a fetched record lacks a field every row needs.
var ErrMalformedRecord = errors.New("malformed record")

// potPrefix marks transactions that move money to or from a pot; the pot ID
// is then the whole description.
const potPrefix = "pot_"

// Minor converts integer minor units to major units.
func Minor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Tables is the set of freshly shaped tables of one run.
type Tables struct {
	Accounts     *table.Table[AccountRow]
	Pots         *table.Table[PotRow]
	Transactions *table.Table[TransactionRow]
	Merchants    *table.Table[MerchantRow]
	Groups       *table.Table[MerchantGroupRow]
	Balances     *table.Table[BalanceRow]
}

// Shaper accumulates rows for one run. It is not safe for concurrent use.
type Shaper struct {
	now   time.Time
	allow map[string]bool
	log   zerolog.Logger

	accounts     []AccountRow
	pots         []PotRow
	transactions []TransactionRow
	balances     []BalanceRow

	merchants     []MerchantRow
	merchantIndex map[string]int
	groups        []MerchantGroupRow
	groupIndex    map[string]int
}

// NewShaper creates a shaper that stamps balances with now and keeps only
// accounts whose type is in accountTypes.
func NewShaper(now time.Time, accountTypes []string, log zerolog.Logger) *Shaper {
	allow := make(map[string]bool, len(accountTypes))
	for _, t := range accountTypes {
		allow[t] = true
	}
	return &Shaper{
		now:           now.UTC(),
		allow:         allow,
		log:           log,
		merchantIndex: map[string]int{},
		groupIndex:    map[string]int{},
	}
}

// Allowed reports whether an account passes the account-type filter.
func (s *Shaper) Allowed(acc monzo.Account) bool {
	return s.allow[acc.Type]
}

// AddAccount emits the account row and its balance snapshot, plus a row and
// a balance snapshot for every pot. It returns false when the account type
// is filtered out, in which case nothing is emitted.
func (s *Shaper) AddAccount(acc monzo.Account, bal *monzo.Balance, pots []monzo.Pot) (bool, error) {
	if !s.Allowed(acc) {
		s.log.Debug().Str("account_id", acc.ID).Str("account_type", acc.Type).Msg("Skipping account type")
		return false, nil
	}
	if acc.ID == "" {
		return false, fmt.Errorf("AddAccount: %w: account without id", ErrMalformedRecord)
	}

	s.accounts = append(s.accounts, AccountRow{
		AccountID:   acc.ID,
		AccountType: acc.Type,
		Description: acc.Description,
		Currency:    acc.Currency,
		Created:     acc.Created.UTC(),
		Closed:      acc.Closed,
	})

	if bal != nil {
		currency := bal.Currency
		if currency == "" {
			currency = acc.Currency
		}
		s.addBalance(acc.ID, OwnerAccount, bal.Balance, currency)
	}

	for _, p := range pots {
		if p.ID == "" {
			return false, fmt.Errorf("AddAccount: %w: pot without id in account %s", ErrMalformedRecord, acc.ID)
		}

		var goal *decimal.Decimal
		if p.GoalAmount != nil {
			g := Minor(*p.GoalAmount)
			goal = &g
		}
		potType := p.Type
		if potType == "" {
			potType = p.Style
		}

		s.pots = append(s.pots, PotRow{
			PotID:       p.ID,
			AccountID:   acc.ID,
			PotName:     p.Name,
			PotType:     potType,
			PotBalance:  Minor(p.Balance),
			PotCurrency: p.Currency,
			GoalAmount:  goal,
			Created:     p.Created.UTC(),
			Updated:     p.Updated.UTC(),
			Deleted:     p.Deleted,
		})
		s.addBalance(p.ID, OwnerPot, p.Balance, p.Currency)
	}

	return true, nil
}

func (s *Shaper) addBalance(ownerID, ownerType string, minor int64, currency string) {
	s.balances = append(s.balances, BalanceRow{
		OwnerID:   ownerID,
		OwnerType: ownerType,
		Date:      civil.DateOf(s.now),
		Balance:   Minor(minor),
		Currency:  currency,
		FetchedAt: s.now,
	})
}

// AddTransaction emits a transaction row and, when the transaction carries
// merchant details, a merchant row and a merchant group row.
func (s *Shaper) AddTransaction(tx monzo.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("AddTransaction: %w: transaction without id", ErrMalformedRecord)
	}

	settled, err := tx.SettledAt()
	if err != nil {
		return fmt.Errorf("AddTransaction: %w: %v", ErrMalformedRecord, err)
	}
	if settled != nil {
		utc := settled.UTC()
		settled = &utc
	}

	row := TransactionRow{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Created:       tx.Created.UTC(),
		Description:   tx.Description,
		GBPAmount:     Minor(tx.Amount),
		Currency:      tx.Currency,
		LocalAmount:   Minor(tx.LocalAmount),
		LocalCurrency: tx.LocalCurrency,
		Category:      tx.Category,
		Notes:         nonEmpty(tx.Notes),
		DeclineReason: nonEmpty(tx.DeclineReason),
		PotID:         PotReference(tx.Description),
		IsLoad:        tx.IsLoad,
		Settled:       settled,
	}

	switch m := tx.Merchant; {
	case m.Details != nil:
		row.MerchantID = s.addMerchant(tx.ID, m.Details)
	case m.ID != "":
		row.MerchantID = &m.ID
	}

	s.transactions = append(s.transactions, row)
	return nil
}

// addMerchant records a merchant and its group, replacing any earlier row
// for the same ID from this fetch. It returns the merchant ID to reference,
// or nil when the merchant had no ID.
func (s *Shaper) addMerchant(txID string, m *monzo.Merchant) *string {
	if m.ID == "" {
		s.log.Warn().Str("transaction_id", txID).Msg("Dropping merchant without id")
		return nil
	}

	groupID := m.GroupID
	if groupID == "" {
		groupID = m.ID
	}

	row := MerchantRow{
		MerchantID:   m.ID,
		GroupID:      groupID,
		MerchantName: m.Name,
		Category:     m.Category,
		IsOnline:     m.Online,
		IsATM:        m.ATM,
	}
	if a := m.Address; a != nil {
		lat, lng := a.Latitude, a.Longitude
		row.Latitude = &lat
		row.Longitude = &lng
		row.City = nonEmpty(a.City)
		row.Country = nonEmpty(a.Country)
		row.Postcode = nonEmpty(a.Postcode)
	} else if !m.Online {
		s.log.Warn().Str("merchant_id", m.ID).Msg("Merchant has no address")
	}

	if i, ok := s.merchantIndex[m.ID]; ok {
		s.merchants[i] = row
	} else {
		s.merchantIndex[m.ID] = len(s.merchants)
		s.merchants = append(s.merchants, row)
	}

	group := MerchantGroupRow{
		GroupID:           groupID,
		MerchantGroupName: m.Name,
		Logo:              nonEmpty(m.Logo),
	}
	if i, ok := s.groupIndex[groupID]; ok {
		s.groups[i] = group
	} else {
		s.groupIndex[groupID] = len(s.groups)
		s.groups = append(s.groups, group)
	}

	id := m.ID
	return &id
}

// PotReference returns the description as a pot ID when it looks like one.
func PotReference(description string) *string {
	if !strings.HasPrefix(description, potPrefix) {
		return nil
	}
	return &description
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Tables returns the shaped tables. The shaper must not be used afterwards.
func (s *Shaper) Tables() *Tables {
	return &Tables{
		Accounts:     table.New(AccountsSchema, s.accounts),
		Pots:         table.New(PotsSchema, s.pots),
		Transactions: table.New(TransactionsSchema, s.transactions),
		Merchants:    table.New(MerchantsSchema, s.merchants),
		Groups:       table.New(GroupsSchema, s.groups),
		Balances:     table.New(BalancesSchema, s.balances),
	}
}
