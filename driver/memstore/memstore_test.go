package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uptrace/hookgate/driver/memstore"
	"github.com/uptrace/hookgate/schema"
)

var ctx = context.Background()

func newStore(t *testing.T) *memstore.Store {
	t.Helper()
	return memstore.NewStore(schema.NewTables())
}

func TestCRUD(t *testing.T) {
	store := newStore(t)

	txn, err := store.Begin(ctx)
	require.NoError(t, err)

	row, err := store.Insert(ctx, txn, "productos", schema.NewRowImage(map[string]any{
		"id": "p1", "stock": 10,
	}))
	require.NoError(t, err)
	require.EqualValues(t, 10, row.Int64("stock"))

	// Duplicate insert within the same transaction.
	_, err = store.Insert(ctx, txn, "productos", schema.NewRowImage(map[string]any{"id": "p1"}))
	require.ErrorIs(t, err, memstore.ErrDuplicateKey)

	updated, err := store.Update(ctx, txn, "productos", "p1", schema.NewRowImage(map[string]any{
		"id": "p1", "stock": 7,
	}))
	require.NoError(t, err)
	require.EqualValues(t, 7, updated.Int64("stock"))

	require.NoError(t, store.Delete(ctx, txn, "productos", "p1"))
	_, err = store.ReadByKey(ctx, txn, "productos", "p1")
	require.ErrorIs(t, err, schema.ErrNotFound)

	require.NoError(t, store.Commit(txn))
	require.Empty(t, store.Rows("productos"))
}

func TestUpdateMissingRow(t *testing.T) {
	store := newStore(t)

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	defer store.Rollback(txn)

	_, err = store.Update(ctx, txn, "productos", "nope", schema.NewRowImage(map[string]any{"id": "nope"}))
	require.ErrorIs(t, err, schema.ErrNotFound)

	require.ErrorIs(t, store.Delete(ctx, txn, "productos", "nope"), schema.ErrNotFound)
}

func TestReadCommitted(t *testing.T) {
	store := newStore(t)

	writer, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = store.Insert(ctx, writer, "productos", schema.NewRowImage(map[string]any{"id": "p1"}))
	require.NoError(t, err)

	// Uncommitted writes are invisible to other transactions.
	reader, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = store.ReadByKey(ctx, reader, "productos", "p1")
	require.ErrorIs(t, err, schema.ErrNotFound)

	require.NoError(t, store.Commit(writer))

	row, err := store.ReadByKey(ctx, reader, "productos", "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", row.Str("id"))
	require.NoError(t, store.Rollback(reader))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Seed("productos", schema.NewRowImage(map[string]any{"id": "p1", "stock": 10})))

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = store.Update(ctx, txn, "productos", "p1", schema.NewRowImage(map[string]any{"id": "p1", "stock": 0}))
	require.NoError(t, err)
	require.NoError(t, store.Rollback(txn))

	rows := store.Rows("productos")
	require.Len(t, rows, 1)
	require.EqualValues(t, 10, rows[0].Int64("stock"))

	require.ErrorIs(t, store.Commit(txn), memstore.ErrTxnDone)
}

func TestReadForUpdateBlocksWriters(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Seed("productos", schema.NewRowImage(map[string]any{"id": "p1", "stock": 10})))

	holder, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = store.ReadForUpdate(ctx, holder, "productos", "p1")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		other, err := store.Begin(ctx)
		if err != nil {
			acquired <- err
			return
		}
		defer store.Rollback(other)
		_, err = store.ReadForUpdate(ctx, other, "productos", "p1")
		acquired <- err
	}()

	select {
	case <-acquired:
		t.Fatal("lock was not held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, store.Commit(holder))
	require.NoError(t, <-acquired)
}

func TestReadForUpdateHonorsCancellation(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Seed("productos", schema.NewRowImage(map[string]any{"id": "p1"})))

	holder, err := store.Begin(ctx)
	require.NoError(t, err)
	defer store.Rollback(holder)
	_, err = store.ReadForUpdate(ctx, holder, "productos", "p1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	blocked, err := store.Begin(ctx)
	require.NoError(t, err)
	defer store.Rollback(blocked)

	_, err = store.ReadForUpdate(waitCtx, blocked, "productos", "p1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestForeignTxn(t *testing.T) {
	store := newStore(t)
	other := newStore(t)

	txn, err := other.Begin(ctx)
	require.NoError(t, err)

	_, err = store.ReadByKey(ctx, txn, "productos", "p1")
	require.ErrorIs(t, err, memstore.ErrForeignTxn)
}
