package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/monzo"
	"github.com/dvloznov/monzo-export/internal/table"
)

// MonzoAPI is the subset of the Monzo client the export needs.
// *monzo.Client implements it.
type MonzoAPI interface {
	ListAccounts(ctx context.Context) ([]monzo.Account, error)
	GetBalance(ctx context.Context, accountID string) (*monzo.Balance, error)
	ListPots(ctx context.Context, accountID string) ([]monzo.Pot, error)
	ListTransactions(ctx context.Context, accountID string, since time.Time) ([]monzo.Transaction, error)
}

// Publisher mirrors persisted entity files into a warehouse.
// *bigquery.BigQueryPublisher implements it.
type Publisher interface {
	// PublishFile loads file contents that were read from storage.
	PublishFile(ctx context.Context, s *table.Schema, f format.Format, data []byte, runID string) error

	// PublishURI loads a file the warehouse can read directly, such as a gs:// object.
	PublishURI(ctx context.Context, s *table.Schema, f format.Format, uri string, runID string) error
}
