// Package table holds the typed record sets exchanged between shaping and
// persistence, and the reconciliation that merges fresh rows into history.
package table

import "fmt"

// Record is a typed row that projects onto its schema's columns, in order.
type Record interface {
	Values() []any
}

// Table is an ordered sequence of rows sharing one schema.
type Table[R Record] struct {
	Schema *Schema
	Rows   []R
}

// New creates a table over the given rows.
func New[R Record](s *Schema, rows []R) *Table[R] {
	return &Table[R]{Schema: s, Rows: rows}
}

// Len returns the number of rows; a nil table has none.
func (t *Table[R]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Matrix projects every row onto the schema, checking each value against its column.
func (t *Table[R]) Matrix() ([][]any, error) {
	out := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		vals := r.Values()
		if len(vals) != len(t.Schema.Columns) {
			return nil, fmt.Errorf("Matrix: %s row %d: %d values for %d columns: %w",
				t.Schema.Entity, i, len(vals), len(t.Schema.Columns), ErrSchemaMismatch)
		}
		for j, c := range t.Schema.Columns {
			if err := CheckValue(c, vals[j]); err != nil {
				return nil, fmt.Errorf("Matrix: %s row %d: %w", t.Schema.Entity, i, err)
			}
		}
		out[i] = vals
	}
	return out, nil
}

// FromMatrix rebuilds typed rows from projected values.
func FromMatrix[R Record](s *Schema, values [][]any, decode func([]any) (R, error)) (*Table[R], error) {
	rows := make([]R, 0, len(values))
	for i, v := range values {
		r, err := decode(v)
		if err != nil {
			return nil, fmt.Errorf("FromMatrix: %s row %d: %w", s.Entity, i, err)
		}
		rows = append(rows, r)
	}
	return New(s, rows), nil
}
