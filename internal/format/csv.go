package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/monzo-export/internal/table"
	"github.com/shopspring/decimal"
)

// CSV is the delimited-text format. Nulls are written as empty cells; money is
// written with two decimal places.
//
// encoding/csv drops a carriage return before a newline even inside quoted
// fields, so a string holding "\r\n" reads back with "\n". Parquet keeps it.
type CSV struct{}

func (CSV) Name() string      { return "csv" }
func (CSV) Extension() string { return "csv" }

// Encode writes a header row followed by one record per row.
func (CSV) Encode(w io.Writer, s *table.Schema, rows [][]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.ColumnNames()); err != nil {
		return fmt.Errorf("CSV.Encode: writing header: %w", err)
	}

	record := make([]string, len(s.Columns))
	for i, row := range rows {
		for j, c := range s.Columns {
			cell, err := formatCell(c, row[j])
			if err != nil {
				return fmt.Errorf("CSV.Encode: %s row %d: %w", s.Entity, i, err)
			}
			record[j] = cell
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("CSV.Encode: writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSV.Encode: flush: %w", err)
	}
	return nil
}

// Decode reads a header row and maps each record onto the schema by column name.
func (CSV) Decode(r io.Reader, s *table.Schema) ([][]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("CSV.Decode: reading header: %w", err)
	}

	positions, err := columnPositions(s, header)
	if err != nil {
		return nil, fmt.Errorf("CSV.Decode: %w", err)
	}

	var rows [][]any
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV.Decode: line %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("CSV.Decode: line %d: %d fields, header has %d", line, len(record), len(header))
		}

		row := make([]any, len(s.Columns))
		for i, c := range s.Columns {
			v, err := parseCell(c, record[positions[i]])
			if err != nil {
				return nil, fmt.Errorf("CSV.Decode: line %d: %w", line, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func formatCell(c table.Column, v any) (string, error) {
	if err := table.CheckValue(c, v); err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case decimal.Decimal:
		return val.StringFixed(2), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case civil.Date:
		return val.String(), nil
	}
	return "", fmt.Errorf("column %s: unsupported value %T", c.Name, v)
}

func parseCell(c table.Column, cell string) (any, error) {
	// An empty cell is null for nullable columns; a required string may be empty.
	if cell == "" {
		if c.Nullable {
			return nil, nil
		}
		if c.Type == table.String {
			return "", nil
		}
		return nil, fmt.Errorf("column %s: empty value in non-nullable column", c.Name)
	}

	switch c.Type {
	case table.String:
		return cell, nil
	case table.Money:
		d, err := decimal.NewFromString(cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return d, nil
	case table.Float:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return f, nil
	case table.Bool:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return b, nil
	case table.Timestamp:
		t, err := time.Parse(time.RFC3339Nano, cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return t.UTC(), nil
	case table.Date:
		d, err := civil.ParseDate(cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("column %s: unsupported type %s", c.Name, c.Type)
}
