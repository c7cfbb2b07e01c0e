package bigquery

import (
	"fmt"
	"regexp"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/table"
)

// FieldType maps a column type to its BigQuery type. Money loads as NUMERIC
// from CSV; Parquet files carry it as FLOAT64 and are loaded with their own schema.
func FieldType(t table.ColumnType) bigquery.FieldType {
	switch t {
	case table.Money:
		return bigquery.NumericFieldType
	case table.Float:
		return bigquery.FloatFieldType
	case table.Bool:
		return bigquery.BooleanFieldType
	case table.Timestamp:
		return bigquery.TimestampFieldType
	case table.Date:
		return bigquery.DateFieldType
	default:
		return bigquery.StringFieldType
	}
}

// Schema converts a table schema to a BigQuery schema.
func Schema(s *table.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = &bigquery.FieldSchema{
			Name:     c.Name,
			Type:     FieldType(c.Type),
			Required: !c.Nullable,
		}
	}
	return out
}

// csvSchema is Schema with every STRING column nullable. A CSV cell cannot tell
// an empty string from null and BigQuery loads empty cells as NULL, so a
// required STRING column would reject rows holding "".
func csvSchema(s *table.Schema) bigquery.Schema {
	out := Schema(s)
	for _, f := range out {
		if f.Type == bigquery.StringFieldType {
			f.Required = false
		}
	}
	return out
}

// configureSource sets the file options for loading an entity file.
func configureSource(fc *bigquery.FileConfig, s *table.Schema, f format.Format) error {
	switch f.(type) {
	case format.CSV:
		fc.SourceFormat = bigquery.CSV
		fc.SkipLeadingRows = 1
		fc.Schema = csvSchema(s)
	case format.Parquet:
		fc.SourceFormat = bigquery.Parquet
	default:
		return fmt.Errorf("configureSource: no BigQuery source format for %q", f.Name())
	}
	return nil
}

var invalidJobIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// jobID names the load job of one entity in one run, so a retried load of
// the same run is rejected by BigQuery instead of running twice.
func jobID(entity, runID string) string {
	return invalidJobIDChars.ReplaceAllString("monzo_export_"+entity+"_"+runID, "_")
}
