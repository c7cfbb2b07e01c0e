package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Values carried in a row are one of: nil (null), string, decimal.Decimal,
// float64, bool, time.Time or civil.Date, matching the column's ColumnType.

// CheckValue reports whether v is acceptable for column c.
func CheckValue(c Column, v any) error {
	if v == nil {
		if c.Nullable {
			return nil
		}
		return fmt.Errorf("column %s: null in non-nullable column", c.Name)
	}
	ok := false
	switch c.Type {
	case String:
		_, ok = v.(string)
	case Money:
		_, ok = v.(decimal.Decimal)
	case Float:
		_, ok = v.(float64)
	case Bool:
		_, ok = v.(bool)
	case Timestamp:
		_, ok = v.(time.Time)
	case Date:
		_, ok = v.(civil.Date)
	}
	if !ok {
		return fmt.Errorf("column %s: value of type %T, want %s", c.Name, v, c.Type)
	}
	return nil
}

// Opt converts an optional field into a row value.
func Opt[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Get reads a non-null value of type T from a row.
func Get[T any](values []any, i int) (T, error) {
	var zero T
	if i >= len(values) {
		return zero, fmt.Errorf("column %d: row has %d values", i, len(values))
	}
	v, ok := values[i].(T)
	if !ok {
		return zero, fmt.Errorf("column %d: value of type %T, want %T", i, values[i], zero)
	}
	return v, nil
}

// GetOpt reads a nullable value of type T from a row.
func GetOpt[T any](values []any, i int) (*T, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("column %d: row has %d values", i, len(values))
	}
	if values[i] == nil {
		return nil, nil
	}
	v, ok := values[i].(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("column %d: value of type %T, want %T", i, values[i], zero)
	}
	return &v, nil
}

// keyPart renders a single value so that equal logical values render equally,
// regardless of how they were produced (fresh from the API or decoded from a file).
// Each part is a type tag and a length prefix followed by the text, so no value
// can collide with null or with another part boundary.
func keyPart(v any) string {
	var tag byte
	var text string
	switch val := v.(type) {
	case nil:
		return "n"
	case string:
		tag, text = 's', val
	case decimal.Decimal:
		tag, text = 'm', val.String()
	case float64:
		tag, text = 'f', strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		tag, text = 'b', strconv.FormatBool(val)
	case time.Time:
		tag, text = 't', val.UTC().Format(time.RFC3339Nano)
	case civil.Date:
		tag, text = 'd', val.String()
	default:
		tag, text = 'x', fmt.Sprint(val)
	}
	return string(tag) + strconv.Itoa(len(text)) + ":" + text
}

func keyOf(values []any, idx []int) string {
	if len(idx) == 1 {
		return keyPart(values[idx[0]])
	}
	var b strings.Builder
	for _, j := range idx {
		b.WriteString(keyPart(values[j]))
	}
	return b.String()
}
