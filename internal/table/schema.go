package table

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when two tables (or a stored file and its
	// schema) do not share the same column set.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnknownColumn is returned when a column name is not part of a schema.
	ErrUnknownColumn = errors.New("unknown column")
)

// ColumnType is the logical type of a column.
type ColumnType int

const (
	String ColumnType = iota
	// Money holds a decimal.Decimal amount in major currency units.
	Money
	Float
	Bool
	Timestamp
	// Date holds a civil.Date.
	Date
)

func (t ColumnType) String() string {
	switch t {
	case String:
		return "STRING"
	case Money:
		return "MONEY"
	case Float:
		return "FLOAT"
	case Bool:
		return "BOOL"
	case Timestamp:
		return "TIMESTAMP"
	case Date:
		return "DATE"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column describes one named, typed column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is the shared description of one entity table: its name, its
// version, its ordered columns and the columns that identify a logical record.
type Schema struct {
	Entity  string
	Version int
	Columns []Column
	Key     []string
}

// Validate checks that column names are unique and that every key column exists.
func (s *Schema) Validate() error {
	if s.Entity == "" {
		return fmt.Errorf("Validate: schema has no entity name")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("Validate: %s: empty column name", s.Entity)
		}
		if seen[c.Name] {
			return fmt.Errorf("Validate: %s: duplicate column %q", s.Entity, c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range s.Key {
		if !seen[k] {
			return fmt.Errorf("Validate: %s: key column %q: %w", s.Entity, k, ErrUnknownColumn)
		}
	}
	return nil
}

// Index returns the position of the named column, or -1.
func (s *Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Indexes resolves column names to positions.
func (s *Schema) Indexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j := s.Index(n)
		if j < 0 {
			return nil, fmt.Errorf("%s.%s: %w", s.Entity, n, ErrUnknownColumn)
		}
		idx[i] = j
	}
	return idx, nil
}

// ColumnNames returns the column names in order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Equal reports whether both schemas describe the same columns in the same order.
// Key and version are not compared: a table's column set is what must line up.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.Entity != o.Entity || len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}
