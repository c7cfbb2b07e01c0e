package format

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/dvloznov/monzo-export/internal/table"
	"github.com/shopspring/decimal"
)

// Parquet is the columnar binary format. Money is stored as float64 and
// rounded back to two places on read; timestamps are microseconds in UTC.
type Parquet struct{}

func (Parquet) Name() string      { return "parquet" }
func (Parquet) Extension() string { return "parquet" }

const (
	metaEntity  = "monzo_export.entity"
	metaVersion = "monzo_export.schema_version"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// ArrowSchema converts a table schema to its Arrow form.
func ArrowSchema(s *table.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: c.Nullable}
	}
	md := arrow.NewMetadata(
		[]string{metaEntity, metaVersion},
		[]string{s.Entity, strconv.Itoa(s.Version)},
	)
	return arrow.NewSchema(fields, &md)
}

func arrowType(t table.ColumnType) arrow.DataType {
	switch t {
	case table.Money, table.Float:
		return arrow.PrimitiveTypes.Float64
	case table.Bool:
		return arrow.FixedWidthTypes.Boolean
	case table.Timestamp:
		return timestampType
	case table.Date:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// Encode writes all rows as a single Snappy-compressed row group.
func (Parquet) Encode(w io.Writer, s *table.Schema, rows [][]any) error {
	mem := memory.NewGoAllocator()
	schema := ArrowSchema(s)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, row := range rows {
		for j, c := range s.Columns {
			if err := appendValue(b.Field(j), c, row[j]); err != nil {
				return fmt.Errorf("Parquet.Encode: %s row %d: %w", s.Entity, i, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(mem),
	)
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("Parquet.Encode: creating writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("Parquet.Encode: writing record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("Parquet.Encode: closing writer: %w", err)
	}
	return nil
}

func appendValue(b array.Builder, c table.Column, v any) error {
	if err := table.CheckValue(c, v); err != nil {
		return err
	}
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch val := v.(type) {
	case string:
		b.(*array.StringBuilder).Append(val)
	case decimal.Decimal:
		b.(*array.Float64Builder).Append(val.InexactFloat64())
	case float64:
		b.(*array.Float64Builder).Append(val)
	case bool:
		b.(*array.BooleanBuilder).Append(val)
	case time.Time:
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(val.UTC().UnixMicro()))
	case civil.Date:
		b.(*array.Date32Builder).Append(arrow.Date32FromTime(val.In(time.UTC)))
	default:
		return fmt.Errorf("column %s: unsupported value %T", c.Name, v)
	}
	return nil
}

// Decode reads the whole file and maps its columns onto s by name.
func (Parquet) Decode(r io.Reader, s *table.Schema) ([][]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Parquet.Decode: reading: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("Parquet.Decode: reading table: %w", err)
	}
	defer tbl.Release()

	fields := tbl.Schema().Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	positions, err := columnPositions(s, header)
	if err != nil {
		return nil, fmt.Errorf("Parquet.Decode: %w", err)
	}

	rows := make([][]any, 0, tbl.NumRows())
	tr := array.NewTableReader(tbl, 4096)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]any, len(s.Columns))
			for j, c := range s.Columns {
				v, err := readValue(rec.Column(positions[j]), c, i)
				if err != nil {
					return nil, fmt.Errorf("Parquet.Decode: %s row %d: %w", s.Entity, len(rows), err)
				}
				row[j] = v
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

type stringValuer interface {
	Value(i int) string
}

func readValue(col arrow.Array, c table.Column, i int) (any, error) {
	if col.IsNull(i) {
		if c.Nullable {
			return nil, nil
		}
		if c.Type == table.String {
			return "", nil
		}
		return nil, fmt.Errorf("column %s: null in non-nullable column", c.Name)
	}

	switch c.Type {
	case table.String:
		if sv, ok := col.(stringValuer); ok {
			return sv.Value(i), nil
		}
	case table.Money:
		if f, ok := col.(*array.Float64); ok {
			return decimal.NewFromFloat(f.Value(i)).Round(2), nil
		}
	case table.Float:
		if f, ok := col.(*array.Float64); ok {
			return f.Value(i), nil
		}
	case table.Bool:
		if b, ok := col.(*array.Boolean); ok {
			return b.Value(i), nil
		}
	case table.Timestamp:
		if ts, ok := col.(*array.Timestamp); ok {
			unit := ts.DataType().(*arrow.TimestampType).Unit
			return ts.Value(i).ToTime(unit).UTC(), nil
		}
	case table.Date:
		if d, ok := col.(*array.Date32); ok {
			return civil.DateOf(d.Value(i).ToTime()), nil
		}
	}
	return nil, fmt.Errorf("column %s: stored as %s, want %s", c.Name, col.DataType(), c.Type)
}
