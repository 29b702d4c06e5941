// Package schema holds the data model shared by the hookgate engine and its
// store adapters: entity metadata, immutable row images, and the record store
// contract.
package schema

import (
	"fmt"
	"strconv"

	"github.com/puzpuzpuz/xsync/v3"
	hex "github.com/tmthrgd/go-hex"
)

// EntityType names a record kind, e.g. "product" or "employee". It is
// case-sensitive and used verbatim as a registry key.
type EntityType string

// Key identifies a single record within an entity. Non-string key values are
// canonicalized by Tables.KeyOf.
type Key string

// Table carries per-entity metadata. The only metadata the engine needs is
// the name of the key field.
type Table struct {
	Entity   EntityType
	KeyField string
}

// Tables is a registry of per-entity metadata. Get never fails: entities that
// were not registered explicitly fall back to an "id" key field.
type Tables struct {
	tables *xsync.MapOf[EntityType, *Table]
}

func NewTables() *Tables {
	return &Tables{
		tables: xsync.NewMapOf[EntityType, *Table](),
	}
}

// Register records the key field for an entity, replacing any previous
// registration.
func (reg *Tables) Register(entity EntityType, keyField string) *Table {
	table := &Table{Entity: entity, KeyField: keyField}
	reg.tables.Store(entity, table)
	return table
}

func (reg *Tables) Get(entity EntityType) *Table {
	if table, ok := reg.tables.Load(entity); ok {
		return table
	}
	table, _ := reg.tables.LoadOrStore(entity, &Table{Entity: entity, KeyField: "id"})
	return table
}

// KeyOf extracts and canonicalizes the key of a row.
func (reg *Tables) KeyOf(entity EntityType, row *RowImage) (Key, error) {
	table := reg.Get(entity)
	value, ok := row.Get(table.KeyField)
	if !ok {
		return "", fmt.Errorf("hookgate: %s row has no key field %q", entity, table.KeyField)
	}
	return formatKey(value)
}

func formatKey(value any) (Key, error) {
	switch v := value.(type) {
	case string:
		return Key(v), nil
	case int:
		return Key(strconv.FormatInt(int64(v), 10)), nil
	case int32:
		return Key(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return Key(strconv.FormatInt(v, 10)), nil
	case uint64:
		return Key(strconv.FormatUint(v, 10)), nil
	case []byte:
		return Key(hex.EncodeToString(v)), nil
	case fmt.Stringer:
		return Key(v.String()), nil
	default:
		return "", fmt.Errorf("hookgate: unsupported key type %T", value)
	}
}
