package bigquery

import (
	"regexp"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/monzo-export/internal/format"
	"github.com/dvloznov/monzo-export/internal/table"
)

var testSchema = &table.Schema{
	Entity:  "balances",
	Version: 1,
	Columns: []table.Column{
		{Name: "OwnerID", Type: table.String},
		{Name: "Date", Type: table.Date},
		{Name: "Balance", Type: table.Money},
		{Name: "Lat", Type: table.Float, Nullable: true},
		{Name: "Closed", Type: table.Bool},
		{Name: "FetchedAt", Type: table.Timestamp},
	},
	Key: []string{"OwnerID", "Date"},
}

func TestSchema(t *testing.T) {
	got := Schema(testSchema)

	want := []struct {
		name     string
		typ      bigquery.FieldType
		required bool
	}{
		{"OwnerID", bigquery.StringFieldType, true},
		{"Date", bigquery.DateFieldType, true},
		{"Balance", bigquery.NumericFieldType, true},
		{"Lat", bigquery.FloatFieldType, false},
		{"Closed", bigquery.BooleanFieldType, true},
		{"FetchedAt", bigquery.TimestampFieldType, true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d fields, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Type != w.typ || got[i].Required != w.required {
			t.Errorf("field %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestConfigureSource(t *testing.T) {
	var csvConf bigquery.FileConfig
	if err := configureSource(&csvConf, testSchema, format.CSV{}); err != nil {
		t.Fatalf("configureSource(csv) error = %v", err)
	}
	if csvConf.SourceFormat != bigquery.CSV || csvConf.SkipLeadingRows != 1 || len(csvConf.Schema) != len(testSchema.Columns) {
		t.Errorf("unexpected CSV config %+v", csvConf)
	}
	for _, f := range csvConf.Schema {
		// Empty strings arrive as NULL from CSV, so STRING columns must accept them.
		wantRequired := f.Type != bigquery.StringFieldType && f.Name != "Lat"
		if f.Required != wantRequired {
			t.Errorf("CSV field %s Required = %v, want %v", f.Name, f.Required, wantRequired)
		}
	}

	var pqConf bigquery.FileConfig
	if err := configureSource(&pqConf, testSchema, format.Parquet{}); err != nil {
		t.Fatalf("configureSource(parquet) error = %v", err)
	}
	if pqConf.SourceFormat != bigquery.Parquet || pqConf.Schema != nil {
		t.Errorf("unexpected Parquet config %+v", pqConf)
	}
}

func TestJobID(t *testing.T) {
	id := jobID("transactions", "3f2a9c1e-0000-4000-8000-000000000000")
	if !regexp.MustCompile(`^[A-Za-z0-9_-]+$`).MatchString(id) {
		t.Errorf("jobID() = %q has invalid characters", id)
	}
	if jobID("pots", "run/1") != "monzo_export_pots_run_1" {
		t.Errorf("jobID() = %q", jobID("pots", "run/1"))
	}
	if jobID("pots", "r") == jobID("groups", "r") {
		t.Error("job IDs of different entities must differ")
	}
}
