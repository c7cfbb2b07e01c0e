package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/monzo-export/internal/config"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/notionsync"
	"github.com/dvloznov/monzo-export/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	startDateStr := flag.String("start-date", "", "Only sync transactions created on or after this date (YYYY-MM-DD)")
	endDateStr := flag.String("end-date", "", "Only sync transactions created before the end of this date (YYYY-MM-DD)")
	notionToken := flag.String("notion-token", cfg.NotionToken, "Notion API token (default NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", cfg.NotionDatabaseID, "Notion database ID (default NOTION_DATABASE_ID)")
	prune := flag.Bool("prune", false, "Archive Notion pages whose transaction is not in storage")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg.NotionToken, cfg.NotionDatabaseID = *notionToken, *notionDBID
	if err := cfg.RequireNotion(); err != nil {
		log.Fatal().Err(err).Msg("Error: --notion-token and --notion-db-id are required")
	}

	opts := notionsync.Options{
		DatabaseID: cfg.NotionDatabaseID,
		Prune:      *prune,
		DryRun:     *dryRun,
	}
	if *startDateStr != "" {
		if opts.Since, err = time.Parse("2006-01-02", *startDateStr); err != nil {
			log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
		}
	}
	if *endDateStr != "" {
		end, err := time.Parse("2006-01-02", *endDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
		}
		opts.Until = end.AddDate(0, 0, 1)
	}
	if !opts.Since.IsZero() && !opts.Until.IsZero() && !opts.Until.After(opts.Since) {
		log.Fatal().
			Time("start_date", opts.Since).
			Time("end_date", opts.Until).
			Msg("Error: end-date must not be before start-date")
	}

	// Create context with timeout so the sync doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	backend, closeBackend, err := storage.Open(ctx, cfg.StorageKind, cfg.StorageRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer closeBackend()

	txs, merchants, err := notionsync.LoadTransactions(ctx, backend, cfg.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}
	if len(txs) == 0 {
		log.Warn().Str("storage_root", cfg.StorageRoot).Msg("No transactions stored yet; run 'cli export' first")
	}

	notionClient := notionsync.NewNotionClient(cfg.NotionToken)

	res, err := notionsync.SyncTransactions(ctx, notionClient, txs, merchants, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d skipped.\n",
		res.Created, res.Updated, res.Archived, res.Skipped)
}
