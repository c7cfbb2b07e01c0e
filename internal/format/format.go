// Package format encodes tables to and from the on-disk file formats.
package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/monzo-export/internal/table"
)

// Format is a tabular file encoding. Rows are exchanged in their projected form
// (one value per schema column, see table.CheckValue).
type Format interface {
	// Name is the configuration name of the format, e.g. "csv".
	Name() string

	// Extension is the file extension without the dot.
	Extension() string

	// Encode writes rows with a header/schema matching s.
	Encode(w io.Writer, s *table.Schema, rows [][]any) error

	// Decode reads rows and maps them onto s by column name.
	Decode(r io.Reader, s *table.Schema) ([][]any, error)
}

// ByName returns the format for a configuration value.
func ByName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv", "":
		return CSV{}, nil
	case "parquet":
		return Parquet{}, nil
	default:
		return nil, fmt.Errorf("ByName: unsupported file format %q", name)
	}
}

// FileName returns "<entity>.<ext>".
func FileName(f Format, entity string) string {
	return entity + "." + f.Extension()
}

// columnPositions maps each schema column to its position in a file header.
func columnPositions(s *table.Schema, header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	out := make([]int, len(s.Columns))
	for i, c := range s.Columns {
		p, ok := pos[c.Name]
		if !ok {
			return nil, fmt.Errorf("%s: column %q missing from stored file: %w", s.Entity, c.Name, table.ErrSchemaMismatch)
		}
		out[i] = p
	}
	return out, nil
}
