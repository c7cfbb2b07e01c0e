package table

import (
	"errors"
	"fmt"
)

// Reconcile merges freshly fetched rows into previously persisted history.
//
// old may be nil, meaning there is no history yet; in that case fresh is returned
// as is, without any deduplication. When fresh has no rows, old is returned
// unchanged. Otherwise the result is old followed by fresh, and when keys is
// non-empty only the last row for each key tuple survives, in the position of
// that last occurrence. Ties are broken by position alone, so rows from fresh win
// over rows from old. An empty keys list disables deduplication.
func Reconcile[R Record](old, fresh *Table[R], keys []string) (*Table[R], error) {
	if fresh == nil {
		return nil, errors.New("Reconcile: fresh table is required")
	}
	if old == nil {
		return fresh, nil
	}
	if !old.Schema.Equal(fresh.Schema) {
		return nil, fmt.Errorf("Reconcile: %s vs %s: %w", entityOf(old), entityOf(fresh), ErrSchemaMismatch)
	}
	if len(fresh.Rows) == 0 {
		return old, nil
	}

	combined := make([]R, 0, len(old.Rows)+len(fresh.Rows))
	combined = append(combined, old.Rows...)
	combined = append(combined, fresh.Rows...)

	if len(keys) == 0 {
		return New(fresh.Schema, combined), nil
	}

	idx, err := fresh.Schema.Indexes(keys)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}

	return New(fresh.Schema, dedupKeepLast(combined, idx)), nil
}

// dedupKeepLast walks the rows backwards so the first time a key is seen is its
// last occurrence, then restores the original order.
func dedupKeepLast[R Record](rows []R, idx []int) []R {
	seen := make(map[string]struct{}, len(rows))
	kept := make([]R, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := keyOf(rows[i].Values(), idx)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, rows[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// DuplicateKeys returns the key tuples that occur more than once in t.
func DuplicateKeys[R Record](t *Table[R], keys []string) ([]string, error) {
	if t == nil || len(keys) == 0 {
		return nil, nil
	}
	idx, err := t.Schema.Indexes(keys)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(t.Rows))
	var dups []string
	for _, r := range t.Rows {
		k := keyOf(r.Values(), idx)
		counts[k]++
		if counts[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups, nil
}

func entityOf[R Record](t *Table[R]) string {
	if t.Schema == nil {
		return "<nil schema>"
	}
	return t.Schema.Entity
}
