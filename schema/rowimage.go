package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	hex "github.com/tmthrgd/go-hex"
)

// RowImage is an immutable snapshot of a record's field values at one point
// in the mutation lifecycle. A mutation carries up to two images: the old row
// (absent for inserts) and the new row (absent for deletes).
//
// Immutability is by construction: NewRowImage copies its input and no method
// mutates the receiver. Merge returns a fresh image.
type RowImage struct {
	fields map[string]any
	names  []string
}

func NewRowImage(fields map[string]any) *RowImage {
	row := &RowImage{
		fields: make(map[string]any, len(fields)),
		names:  make([]string, 0, len(fields)),
	}
	for name, value := range fields {
		row.fields[name] = value
		row.names = append(row.names, name)
	}
	sort.Strings(row.names)
	return row
}

// Names returns the field names in sorted order.
func (row *RowImage) Names() []string {
	names := make([]string, len(row.names))
	copy(names, row.names)
	return names
}

func (row *RowImage) Len() int {
	return len(row.fields)
}

func (row *RowImage) Has(name string) bool {
	_, ok := row.fields[name]
	return ok
}

func (row *RowImage) Get(name string) (any, bool) {
	value, ok := row.fields[name]
	return value, ok
}

// Value returns the field value or nil when the field is absent.
func (row *RowImage) Value(name string) any {
	return row.fields[name]
}

func (row *RowImage) Str(name string) string {
	if v, ok := row.fields[name].(string); ok {
		return v
	}
	return ""
}

func (row *RowImage) Int64(name string) int64 {
	switch v := row.fields[name].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (row *RowImage) Float64(name string) float64 {
	switch v := row.fields[name].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (row *RowImage) Bool(name string) bool {
	v, _ := row.fields[name].(bool)
	return v
}

func (row *RowImage) Time(name string) time.Time {
	v, _ := row.fields[name].(time.Time)
	return v
}

func (row *RowImage) Bytes(name string) []byte {
	v, _ := row.fields[name].([]byte)
	return v
}

// Map returns a mutable copy of the fields.
func (row *RowImage) Map() map[string]any {
	fields := make(map[string]any, len(row.fields))
	for name, value := range row.fields {
		fields[name] = value
	}
	return fields
}

// Merge returns a new image with the override applied on top of the receiver.
// Fields absent from the override keep their current values.
func (row *RowImage) Merge(override map[string]any) *RowImage {
	if len(override) == 0 {
		return row
	}
	fields := row.Map()
	for name, value := range override {
		fields[name] = value
	}
	return NewRowImage(fields)
}

// Equal reports whether the named fields hold the same rendered value in both
// images. With no fields given, all fields of both images are compared.
func (row *RowImage) Equal(other *RowImage, fields ...string) bool {
	if other == nil {
		return row == nil
	}
	if len(fields) == 0 {
		if len(row.fields) != len(other.fields) {
			return false
		}
		fields = row.names
	}
	for _, name := range fields {
		av, aok := row.fields[name]
		bv, bok := other.fields[name]
		if aok != bok || renderValue(av) != renderValue(bv) {
			return false
		}
	}
	return true
}

func (row *RowImage) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range row.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(renderValue(row.fields[name]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case []byte:
		return hex.EncodeToString(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
