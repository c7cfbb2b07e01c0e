// Package export shapes Monzo records into typed tables and persists each
// table by merging it into the history already stored for its entity.
package export

import "github.com/dvloznov/monzo-export/internal/table"

// Entity names double as file names and BigQuery table names.
const (
	EntityAccounts     = "accounts"
	EntityPots         = "pots"
	EntityTransactions = "transactions"
	EntityMerchants    = "merchants"
	EntityGroups       = "groups"
	EntityBalances     = "balances"
)

var AccountsSchema = &table.Schema{
	Entity:  EntityAccounts,
	Version: 1,
	Columns: []table.Column{
		{Name: "AccountID", Type: table.String},
		{Name: "AccountType", Type: table.String},
		{Name: "Description", Type: table.String},
		{Name: "Currency", Type: table.String},
		{Name: "Created", Type: table.Timestamp},
		{Name: "Closed", Type: table.Bool},
	},
	Key: []string{"AccountID"},
}

var PotsSchema = &table.Schema{
	Entity:  EntityPots,
	Version: 1,
	Columns: []table.Column{
		{Name: "PotID", Type: table.String},
		{Name: "AccountID", Type: table.String},
		{Name: "PotName", Type: table.String},
		{Name: "PotType", Type: table.String},
		{Name: "PotBalance", Type: table.Money},
		{Name: "PotCurrency", Type: table.String},
		{Name: "GoalAmount", Type: table.Money, Nullable: true},
		{Name: "Created", Type: table.Timestamp},
		{Name: "Updated", Type: table.Timestamp},
		{Name: "Deleted", Type: table.Bool},
	},
	Key: []string{"PotID"},
}

var TransactionsSchema = &table.Schema{
	Entity:  EntityTransactions,
	Version: 1,
	Columns: []table.Column{
		{Name: "TransactionID", Type: table.String},
		{Name: "AccountID", Type: table.String},
		{Name: "Created", Type: table.Timestamp},
		{Name: "Description", Type: table.String},
		{Name: "GBPAmount", Type: table.Money},
		{Name: "Currency", Type: table.String},
		{Name: "LocalAmount", Type: table.Money},
		{Name: "LocalCurrency", Type: table.String},
		{Name: "Category", Type: table.String},
		{Name: "Notes", Type: table.String, Nullable: true},
		{Name: "DeclineReason", Type: table.String, Nullable: true},
		{Name: "MerchantID", Type: table.String, Nullable: true},
		{Name: "PotID", Type: table.String, Nullable: true},
		{Name: "IsLoad", Type: table.Bool},
		{Name: "Settled", Type: table.Timestamp, Nullable: true},
	},
	Key: []string{"TransactionID"},
}

var MerchantsSchema = &table.Schema{
	Entity:  EntityMerchants,
	Version: 1,
	Columns: []table.Column{
		{Name: "MerchantID", Type: table.String},
		{Name: "GroupID", Type: table.String},
		{Name: "MerchantName", Type: table.String},
		{Name: "Category", Type: table.String},
		{Name: "Latitude", Type: table.Float, Nullable: true},
		{Name: "Longitude", Type: table.Float, Nullable: true},
		{Name: "City", Type: table.String, Nullable: true},
		{Name: "Country", Type: table.String, Nullable: true},
		{Name: "Postcode", Type: table.String, Nullable: true},
		{Name: "IsOnline", Type: table.Bool},
		{Name: "IsATM", Type: table.Bool},
	},
	Key: []string{"MerchantID"},
}

var GroupsSchema = &table.Schema{
	Entity:  EntityGroups,
	Version: 1,
	Columns: []table.Column{
		{Name: "GroupID", Type: table.String},
		{Name: "MerchantGroupName", Type: table.String},
		{Name: "Logo", Type: table.String, Nullable: true},
	},
	Key: []string{"GroupID"},
}

// BalancesSchema keys on (OwnerID, Date): one snapshot per owner per day,
// and a same-day rerun replaces that day's row.
var BalancesSchema = &table.Schema{
	Entity:  EntityBalances,
	Version: 1,
	Columns: []table.Column{
		{Name: "OwnerID", Type: table.String},
		{Name: "OwnerType", Type: table.String},
		{Name: "Date", Type: table.Date},
		{Name: "Balance", Type: table.Money},
		{Name: "Currency", Type: table.String},
		{Name: "FetchedAt", Type: table.Timestamp},
	},
	Key: []string{"OwnerID", "Date"},
}

// Schemas lists every entity schema in persistence order.
func Schemas() []*table.Schema {
	return []*table.Schema{
		AccountsSchema,
		PotsSchema,
		TransactionsSchema,
		MerchantsSchema,
		GroupsSchema,
		BalancesSchema,
	}
}

// SchemaFor returns the schema of a named entity, or nil.
func SchemaFor(entity string) *table.Schema {
	for _, s := range Schemas() {
		if s.Entity == entity {
			return s
		}
	}
	return nil
}
