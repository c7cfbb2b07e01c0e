package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/monzo-export/internal/export"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/storage"
)

// Step 1: FetchAccountsStep fetches accounts with their balances and pots.
type FetchAccountsStep struct {
	API MonzoAPI
}

func (s *FetchAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	accounts, err := s.API.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("FetchAccountsStep: %w", err)
	}

	for _, acc := range accounts {
		if !state.Shaper.Allowed(acc) {
			log.Debug().Str("account_id", acc.ID).Str("account_type", acc.Type).Msg("Skipping account")
			continue
		}

		bal, err := s.API.GetBalance(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("FetchAccountsStep: %w", err)
		}
		pots, err := s.API.ListPots(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("FetchAccountsStep: %w", err)
		}

		if _, err := state.Shaper.AddAccount(acc, bal, pots); err != nil {
			return fmt.Errorf("FetchAccountsStep: %w", err)
		}
		state.Accounts = append(state.Accounts, acc)

		log.Info().
			Str("account_id", acc.ID).
			Str("account_type", acc.Type).
			Int("pots", len(pots)).
			Msg("Fetched account")
	}
	return nil
}

// Step 2: FetchTransactionsStep fetches transactions of every included account.
type FetchTransactionsStep struct {
	API MonzoAPI
}

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for _, acc := range state.Accounts {
		txs, err := s.API.ListTransactions(ctx, acc.ID, state.Since)
		if err != nil {
			return fmt.Errorf("FetchTransactionsStep: %w", err)
		}
		for _, tx := range txs {
			if err := state.Shaper.AddTransaction(tx); err != nil {
				return fmt.Errorf("FetchTransactionsStep: account %s: %w", acc.ID, err)
			}
		}
		state.TransactionCount += len(txs)

		log.Info().Str("account_id", acc.ID).Int("transactions", len(txs)).Msg("Fetched transactions")
	}

	state.Tables = state.Shaper.Tables()
	return nil
}

// Step 3: PersistStep merges every shaped table into its stored history.
type PersistStep struct {
	Backend storage.Backend
	Format  format.Format
	DryRun  bool
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Tables == nil {
		state.Tables = state.Shaper.Tables()
	}

	results, err := export.MergeAll(ctx, s.Backend, s.Format, state.Tables, s.DryRun)
	state.Results = results
	if err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}
	return nil
}

// Step 4: PublishStep mirrors every written entity file into the warehouse.
type PublishStep struct {
	Backend   storage.Backend
	Format    format.Format
	Publisher Publisher
}

func (s *PublishStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for _, res := range state.Results {
		if !res.Written {
			continue
		}
		schema := export.SchemaFor(res.Entity)
		if schema == nil {
			return fmt.Errorf("PublishStep: unknown entity %q", res.Entity)
		}

		if strings.HasPrefix(res.Location, "gs://") {
			if err := s.Publisher.PublishURI(ctx, schema, s.Format, res.Location, state.RunID); err != nil {
				return fmt.Errorf("PublishStep: %w", err)
			}
		} else {
			data, err := s.Backend.Read(ctx, format.FileName(s.Format, res.Entity))
			if err != nil {
				return fmt.Errorf("PublishStep: reading %s: %w", res.Location, err)
			}
			if err := s.Publisher.PublishFile(ctx, schema, s.Format, data, state.RunID); err != nil {
				return fmt.Errorf("PublishStep: %w", err)
			}
		}

		state.Published = append(state.Published, res.Entity)
		log.Info().Str("entity", res.Entity).Int("rows", res.Persisted).Msg("Published table")
	}
	return nil
}
