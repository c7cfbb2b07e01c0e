package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/logger"
	"github.com/dvloznov/monzo-export/internal/storage"
	"github.com/dvloznov/monzo-export/internal/table"
)

// MergeResult describes what Merge did to one entity file.
type MergeResult struct {
	Entity    string
	Location  string
	FirstRun  bool
	Existing  int
	Fetched   int
	Persisted int
	Written   bool
}

// Load reads the persisted table of an entity. A missing file means no
// history and returns nil; any other failure is an error.
func Load[R table.Record](ctx context.Context, b storage.Backend, f format.Format, e Entity[R]) (*table.Table[R], error) {
	name := format.FileName(f, e.Schema.Entity)

	data, err := b.Read(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load %s: %w", e.Schema.Entity, err)
	}

	values, err := f.Decode(bytes.NewReader(data), e.Schema)
	if err != nil {
		return nil, fmt.Errorf("Load %s: decoding %s: %w", e.Schema.Entity, b.Location(name), err)
	}

	t, err := table.FromMatrix(e.Schema, values, e.Decode)
	if err != nil {
		return nil, fmt.Errorf("Load %s: %w", e.Schema.Entity, err)
	}
	return t, nil
}

// Save encodes the table and replaces the entity file.
func Save[R table.Record](ctx context.Context, b storage.Backend, f format.Format, t *table.Table[R]) error {
	values, err := t.Matrix()
	if err != nil {
		return fmt.Errorf("Save %s: %w", t.Schema.Entity, err)
	}

	var buf bytes.Buffer
	if err := f.Encode(&buf, t.Schema, values); err != nil {
		return fmt.Errorf("Save %s: encoding: %w", t.Schema.Entity, err)
	}

	if err := b.Write(ctx, format.FileName(f, t.Schema.Entity), buf.Bytes()); err != nil {
		return fmt.Errorf("Save %s: %w", t.Schema.Entity, err)
	}
	return nil
}

// Merge loads the entity's history, reconciles the fresh rows into it on
// the schema key and writes the result back unless dryRun is set.
func Merge[R table.Record](ctx context.Context, b storage.Backend, f format.Format, e Entity[R], fresh *table.Table[R], dryRun bool) (*table.Table[R], MergeResult, error) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"entity": e.Schema.Entity,
		"format": f.Name(),
	})
	res := MergeResult{
		Entity:   e.Schema.Entity,
		Location: b.Location(format.FileName(f, e.Schema.Entity)),
		Fetched:  fresh.Len(),
	}

	if err := e.Schema.Validate(); err != nil {
		return nil, res, fmt.Errorf("Merge: %w", err)
	}

	old, err := Load(ctx, b, f, e)
	if err != nil {
		return nil, res, fmt.Errorf("Merge: %w", err)
	}
	res.FirstRun = old == nil
	res.Existing = old.Len()

	merged, err := table.Reconcile(old, fresh, e.Schema.Key)
	if err != nil {
		return nil, res, fmt.Errorf("Merge %s: %w", e.Schema.Entity, err)
	}
	res.Persisted = merged.Len()

	if res.FirstRun {
		dups, err := table.DuplicateKeys(merged, e.Schema.Key)
		if err != nil {
			return nil, res, fmt.Errorf("Merge %s: %w", e.Schema.Entity, err)
		}
		if len(dups) > 0 {
			log.Warn().Int("duplicate_keys", len(dups)).Msg("No history to merge with; keeping duplicate keys as fetched")
		}
	}

	if dryRun {
		log.Info().
			Int("existing", res.Existing).
			Int("fetched", res.Fetched).
			Int("would_persist", res.Persisted).
			Msg("Dry run, not writing")
		return merged, res, nil
	}

	if err := Save(ctx, b, f, merged); err != nil {
		return nil, res, fmt.Errorf("Merge: %w", err)
	}
	res.Written = true

	log.Info().
		Str("path", res.Location).
		Bool("first_run", res.FirstRun).
		Int("existing", res.Existing).
		Int("fetched", res.Fetched).
		Int("persisted", res.Persisted).
		Msg("Persisted table")
	return merged, res, nil
}

// MergeAll merges every fresh table in turn. It stops at the first failure.
func MergeAll(ctx context.Context, b storage.Backend, f format.Format, t *Tables, dryRun bool) ([]MergeResult, error) {
	var results []MergeResult
	add := func(r MergeResult, err error) error {
		if err != nil {
			return err
		}
		results = append(results, r)
		return nil
	}

	steps := []func() error{
		func() error { _, r, err := Merge(ctx, b, f, Accounts, t.Accounts, dryRun); return add(r, err) },
		func() error { _, r, err := Merge(ctx, b, f, Pots, t.Pots, dryRun); return add(r, err) },
		func() error { _, r, err := Merge(ctx, b, f, Transactions, t.Transactions, dryRun); return add(r, err) },
		func() error { _, r, err := Merge(ctx, b, f, Merchants, t.Merchants, dryRun); return add(r, err) },
		func() error { _, r, err := Merge(ctx, b, f, Groups, t.Groups, dryRun); return add(r, err) },
		func() error { _, r, err := Merge(ctx, b, f, Balances, t.Balances, dryRun); return add(r, err) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// StoredTable summarises one persisted entity file.
type StoredTable struct {
	Entity   string
	Location string
	Exists   bool
	Rows     int
	Size     int64
	Updated  time.Time
}

// Inventory is what Inspect finds under a storage root: one entry per
// entity, plus files that belong to no entity in the current format.
type Inventory struct {
	Tables []StoredTable
	Stray  []storage.Object
}

// Inspect lists the storage root, then decodes every entity file found
// there and counts its rows.
func Inspect(ctx context.Context, b storage.Backend, f format.Format) (*Inventory, error) {
	objects, err := b.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Inspect: %w", err)
	}
	byName := make(map[string]storage.Object, len(objects))
	for _, o := range objects {
		byName[o.Name] = o
	}

	inv := &Inventory{}
	for _, s := range Schemas() {
		name := format.FileName(f, s.Entity)
		st := StoredTable{Entity: s.Entity, Location: b.Location(name)}

		obj, ok := byName[name]
		if !ok {
			inv.Tables = append(inv.Tables, st)
			continue
		}
		delete(byName, name)

		data, err := b.Read(ctx, name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			inv.Tables = append(inv.Tables, st)
			continue
		case err != nil:
			return nil, fmt.Errorf("Inspect: %w", err)
		}

		values, err := f.Decode(bytes.NewReader(data), s)
		if err != nil {
			return nil, fmt.Errorf("Inspect: decoding %s: %w", st.Location, err)
		}
		st.Exists = true
		st.Rows = len(values)
		st.Size = obj.Size
		st.Updated = obj.Updated
		inv.Tables = append(inv.Tables, st)
	}

	for _, o := range objects {
		if _, stray := byName[o.Name]; stray {
			inv.Stray = append(inv.Stray, o)
		}
	}
	return inv, nil
}
