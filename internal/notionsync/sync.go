// Package notionsync mirrors the persisted transactions table into a Notion
// database, one page per transaction keyed by the "Transaction ID" property.
package notionsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-export/internal/export"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/storage"
	"github.com/jomei/notionapi"
)

// BatchSize is the number of transactions logged as one unit of progress.
const BatchSize = 100

// ErrIncomplete is returned when some pages could not be written.
var ErrIncomplete = errors.New("notion sync incomplete")

// Options control one sync run.
type Options struct {
	DatabaseID string

	// Since and Until bound the transaction Created time. Zero means unbounded.
	Since time.Time
	Until time.Time

	// Prune archives pages whose transaction is no longer in the table,
	// and pages without a transaction ID.
	Prune bool

	DryRun bool
}

func (o Options) inRange(t time.Time) bool {
	if !o.Since.IsZero() && t.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !t.Before(o.Until) {
		return false
	}
	return true
}

// Result counts what a sync did, or would do in a dry run.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Skipped  int
	Failed   int
}

// LoadTransactions reads the persisted transactions table and a merchant name
// lookup from storage. Missing files give empty results.
func LoadTransactions(ctx context.Context, b storage.Backend, f format.Format) ([]export.TransactionRow, map[string]string, error) {
	txs, err := export.Load(ctx, b, f, export.Transactions)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadTransactions: %w", err)
	}

	merchants, err := export.Load(ctx, b, f, export.Merchants)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadTransactions: %w", err)
	}

	names := make(map[string]string, merchants.Len())
	if merchants != nil {
		for _, m := range merchants.Rows {
			names[m.MerchantID] = m.MerchantName
		}
	}

	if txs == nil {
		return nil, names, nil
	}
	return txs.Rows, names, nil
}

// SyncTransactions creates a page for every transaction in range that Notion
// does not have yet and overwrites the properties of those it has, so amended
// transactions replace their earlier version. A failure on one page is logged
// and counted; the run continues and returns ErrIncomplete at the end.
func SyncTransactions(ctx context.Context, notion NotionService, txs []export.TransactionRow, merchants map[string]string, opts Options) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Int("transactions", len(txs)).
		Time("since", opts.Since).
		Time("until", opts.Until).
		Bool("prune", opts.Prune).
		Bool("dry_run", opts.DryRun).
		Msg("Starting transaction sync to Notion")

	pages, err := queryAllNotionPages(ctx, notion, opts.DatabaseID)
	if err != nil {
		return res, fmt.Errorf("SyncTransactions: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := transactionIDOf(page); id != "" {
			existing[id] = string(page.ID)
		}
	}

	if opts.Prune {
		known := make(map[string]bool, len(txs))
		for _, tx := range txs {
			known[tx.TransactionID] = true
		}
		for _, page := range pages {
			id := transactionIDOf(page)
			if id != "" && known[id] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
				res.Archived++
				continue
			}
			if err := notion.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().Err(err).Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
			res.Archived++
		}
	}

	for i := 0; i < len(txs); i += BatchSize {
		end := min(i+BatchSize, len(txs))
		log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Processing batch")

		for _, tx := range txs[i:end] {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("SyncTransactions: %w", err)
			}
			if !opts.inRange(tx.Created) {
				res.Skipped++
				continue
			}

			pageID, found := existing[tx.TransactionID]
			if opts.DryRun {
				if found {
					res.Updated++
				} else {
					res.Created++
				}
				continue
			}

			props := TransactionProperties(tx, merchants)
			if found {
				if _, err := notion.UpdatePage(ctx, pageID, props); err != nil {
					log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Str("page_id", pageID).Msg("Failed to update Notion page")
					res.Failed++
					continue
				}
				res.Updated++
				continue
			}

			page, err := notion.CreatePage(ctx, opts.DatabaseID, props)
			if err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to create Notion page")
				res.Failed++
				continue
			}
			// A transaction appearing twice in the input must not create two pages.
			existing[tx.TransactionID] = string(page.ID)
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")

	if res.Failed > 0 {
		return res, fmt.Errorf("SyncTransactions: %d pages failed: %w", res.Failed, ErrIncomplete)
	}
	return res, nil
}

// queryAllNotionPages follows the query cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	return all, nil
}
