package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uptrace/hookgate/schema"
)

func TestRowImageMerge(t *testing.T) {
	row := schema.NewRowImage(map[string]any{"id": "p1", "nombre": "silla", "stock": 10})

	merged := row.Merge(map[string]any{"stock": 5, "color": "azul"})

	// The original image is untouched.
	require.EqualValues(t, 10, row.Int64("stock"))
	require.False(t, row.Has("color"))

	require.EqualValues(t, 5, merged.Int64("stock"))
	require.Equal(t, "azul", merged.Str("color"))
	require.Equal(t, "silla", merged.Str("nombre"))

	// Empty overrides return the image as-is.
	require.Same(t, row, row.Merge(nil))
}

func TestRowImageEqual(t *testing.T) {
	a := schema.NewRowImage(map[string]any{"id": "e1", "salario": 1500.0, "nombre": "ana"})
	b := schema.NewRowImage(map[string]any{"id": "e1", "salario": 1500.0, "nombre": "maria"})

	require.True(t, a.Equal(b, "salario"))
	require.False(t, a.Equal(b, "nombre"))
	require.False(t, a.Equal(b))
	require.True(t, a.Equal(a))
	require.False(t, a.Equal(nil))
}

func TestRowImageString(t *testing.T) {
	row := schema.NewRowImage(map[string]any{
		"nombre": "ana",
		"token":  []byte{0xde, 0xad},
		"activo": true,
	})
	require.Equal(t, "{activo=true, nombre=ana, token=dead}", row.String())
}

func TestTablesKeyOf(t *testing.T) {
	tables := schema.NewTables()
	tables.Register("empleados", "legajo")

	key, err := tables.KeyOf("empleados", schema.NewRowImage(map[string]any{"legajo": 42}))
	require.NoError(t, err)
	require.Equal(t, schema.Key("42"), key)

	// Unregistered entities fall back to "id".
	key, err = tables.KeyOf("clientes", schema.NewRowImage(map[string]any{"id": "c1"}))
	require.NoError(t, err)
	require.Equal(t, schema.Key("c1"), key)

	_, err = tables.KeyOf("clientes", schema.NewRowImage(map[string]any{"nombre": "ana"}))
	require.Error(t, err)
}

func TestPackRowRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	row := schema.NewRowImage(map[string]any{
		"id": "o1", "total": 99.5, "creado": created,
	})

	packed, err := schema.PackRow(row)
	require.NoError(t, err)

	unpacked, err := schema.UnpackRow(packed)
	require.NoError(t, err)
	require.Equal(t, "o1", unpacked.Str("id"))
	require.Equal(t, 99.5, unpacked.Float64("total"))
	require.True(t, created.Equal(unpacked.Time("creado")))
}
