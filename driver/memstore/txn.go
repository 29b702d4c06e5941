package memstore

import (
	"github.com/google/uuid"

	"github.com/uptrace/hookgate/schema"
)

type stagedRow struct {
	row     *schema.RowImage // nil means deleted
	deleted bool
}

// Txn buffers writes until commit. Reads see committed state plus the
// transaction's own buffer; other transactions' buffers are invisible
// (read committed).
type Txn struct {
	id    string
	store *Store

	staged map[rowKey]stagedRow
	order  []rowKey
	held   map[rowKey]struct{}
	done   bool
}

func newTxn(store *Store) *Txn {
	return &Txn{
		id:     uuid.NewString(),
		store:  store,
		staged: make(map[rowKey]stagedRow),
		held:   make(map[rowKey]struct{}),
	}
}

// visibleRow resolves a row through the transaction's overlay. Caller must
// hold store.mu.
func (t *Txn) visibleRow(rk rowKey) (*schema.RowImage, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if staged, ok := t.staged[rk]; ok {
		if staged.deleted {
			return nil, schema.ErrNotFound
		}
		return staged.row, nil
	}
	if row, ok := t.store.data[rk.entity][rk.key]; ok {
		return row, nil
	}
	return nil, schema.ErrNotFound
}

// stage records a write in the overlay. A nil row stages a delete. Caller
// must hold store.mu.
func (t *Txn) stage(rk rowKey, row *schema.RowImage) {
	if _, ok := t.staged[rk]; !ok {
		t.order = append(t.order, rk)
	}
	t.staged[rk] = stagedRow{row: row, deleted: row == nil}
}

func (t *Txn) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.done {
		return ErrTxnDone
	}
	for _, rk := range t.order {
		staged := t.staged[rk]
		if staged.deleted {
			delete(t.store.entityRows(rk.entity), rk.key)
		} else {
			t.store.entityRows(rk.entity)[rk.key] = staged.row
		}
	}
	t.finish()
	return nil
}

func (t *Txn) rollback() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.done {
		return ErrTxnDone
	}
	t.finish()
	return nil
}

func (t *Txn) finish() {
	t.store.releaseLocks(t)
	t.staged = nil
	t.order = nil
	t.done = true
}
