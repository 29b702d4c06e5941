package schema

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store reads when no row exists for the key.
var ErrNotFound = errors.New("hookgate: row not found")

// Txn is an opaque transaction handle. The engine never inspects it; it only
// threads it through hooks and store calls so that every read and write of a
// mutation shares one atomic unit.
type Txn interface{}

// Store is the record store adapter the engine drives. Implementations must
// provide at least read-committed isolation, and ReadForUpdate must lock the
// row against concurrent writers until the transaction ends. That lock is
// what makes a hook's check-then-write sequence race-free.
type Store interface {
	Begin(ctx context.Context) (Txn, error)
	Commit(txn Txn) error
	Rollback(txn Txn) error

	// ReadByKey returns ErrNotFound when the row does not exist.
	ReadByKey(ctx context.Context, txn Txn, entity EntityType, key Key) (*RowImage, error)
	// ReadForUpdate behaves like ReadByKey but additionally acquires a
	// row-level write lock held until Commit or Rollback.
	ReadForUpdate(ctx context.Context, txn Txn, entity EntityType, key Key) (*RowImage, error)

	Insert(ctx context.Context, txn Txn, entity EntityType, row *RowImage) (*RowImage, error)
	Update(ctx context.Context, txn Txn, entity EntityType, key Key, row *RowImage) (*RowImage, error)
	Delete(ctx context.Context, txn Txn, entity EntityType, key Key) error
}
