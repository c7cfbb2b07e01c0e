// Package pipeline runs one export: fetch from Monzo, shape, merge into the
// stored history and optionally mirror the result into BigQuery.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-export/internal/export"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/monzo"
	"github.com/dvloznov/monzo-export/internal/storage"
	"github.com/google/uuid"
)

// PipelineStep represents a single step in the export pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID string
	Now   time.Time
	Since time.Time

	Shaper   *export.Shaper
	Accounts []monzo.Account
	Tables   *export.Tables
	Results  []export.MergeResult

	TransactionCount int
	Published        []string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Deps are the collaborators of an export run.
type Deps struct {
	API          MonzoAPI
	Backend      storage.Backend
	Format       format.Format
	AccountTypes []string

	// Publisher is optional; without it nothing is mirrored.
	Publisher Publisher
	DryRun    bool
}

// NewExportPipeline creates the standard export pipeline.
func NewExportPipeline(d Deps) *Pipeline {
	steps := []PipelineStep{
		&FetchAccountsStep{API: d.API},
		&FetchTransactionsStep{API: d.API},
		&PersistStep{Backend: d.Backend, Format: d.Format, DryRun: d.DryRun},
	}
	if d.Publisher != nil && !d.DryRun {
		steps = append(steps, &PublishStep{Backend: d.Backend, Format: d.Format, Publisher: d.Publisher})
	}
	return NewPipeline(steps...)
}

// Run executes one export covering transactions created since since.
func Run(ctx context.Context, d Deps, since, now time.Time) (*PipelineState, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		RunID:  runID,
		Now:    now,
		Since:  since,
		Shaper: export.NewShaper(now, d.AccountTypes, log),
	}

	log.Info().
		Time("since", since).
		Strs("account_types", d.AccountTypes).
		Str("format", d.Format.Name()).
		Bool("dry_run", d.DryRun).
		Msg("Starting export")

	if err := NewExportPipeline(d).Execute(ctx, state); err != nil {
		return state, fmt.Errorf("Run: %w", err)
	}

	log.Info().
		Int("accounts", len(state.Accounts)).
		Int("transactions", state.TransactionCount).
		Int("published", len(state.Published)).
		Msg("Export finished")
	return state, nil
}
