// Package memstore is an in-memory implementation of the hookgate record
// store contract. It provides read-committed isolation with buffered writes
// and row-level locks on ReadForUpdate, which makes it good enough to back
// tests and small embedded deployments.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/uptrace/hookgate/schema"
)

var (
	// ErrDuplicateKey reports an insert whose key already exists.
	ErrDuplicateKey = errors.New("memstore: duplicate key")
	// ErrTxnDone reports use of a committed or rolled back transaction.
	ErrTxnDone = errors.New("memstore: transaction has already been finished")
	// ErrForeignTxn reports a transaction handle from another store.
	ErrForeignTxn = errors.New("memstore: transaction belongs to a different store")
)

type rowKey struct {
	entity schema.EntityType
	key    schema.Key
}

// rowLock is a single-owner lock with broadcast release: waiters block on the
// release channel of the current holder and retry.
type rowLock struct {
	owner   string
	release chan struct{}
}

type Store struct {
	tables *schema.Tables

	mu    sync.Mutex
	data  map[schema.EntityType]map[schema.Key]*schema.RowImage
	locks map[rowKey]*rowLock
}

var _ schema.Store = (*Store)(nil)

func NewStore(tables *schema.Tables) *Store {
	return &Store{
		tables: tables,
		data:   make(map[schema.EntityType]map[schema.Key]*schema.RowImage),
		locks:  make(map[rowKey]*rowLock),
	}
}

func (s *Store) Tables() *schema.Tables {
	return s.tables
}

// Seed inserts committed rows directly, bypassing transactions and hooks.
// Meant for test fixtures and initial data.
func (s *Store) Seed(entity schema.EntityType, rows ...*schema.RowImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		key, err := s.tables.KeyOf(entity, row)
		if err != nil {
			return err
		}
		s.entityRows(entity)[key] = row
	}
	return nil
}

// Rows returns the committed rows of an entity ordered by key. Uncommitted
// transaction buffers are not visible.
func (s *Store) Rows(entity schema.EntityType) []*schema.RowImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.data[entity]
	keys := make([]schema.Key, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]*schema.RowImage, len(keys))
	for i, key := range keys {
		out[i] = rows[key]
	}
	return out
}

func (s *Store) Begin(ctx context.Context) (schema.Txn, error) {
	return newTxn(s), nil
}

func (s *Store) Commit(txn schema.Txn) error {
	t, err := s.ownTxn(txn)
	if err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) Rollback(txn schema.Txn) error {
	t, err := s.ownTxn(txn)
	if err != nil {
		return err
	}
	return t.rollback()
}

func (s *Store) ReadByKey(
	ctx context.Context, txn schema.Txn, entity schema.EntityType, key schema.Key,
) (*schema.RowImage, error) {
	t, err := s.ownTxn(txn)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return t.visibleRow(rowKey{entity: entity, key: key})
}

func (s *Store) ReadForUpdate(
	ctx context.Context, txn schema.Txn, entity schema.EntityType, key schema.Key,
) (*schema.RowImage, error) {
	t, err := s.ownTxn(txn)
	if err != nil {
		return nil, err
	}

	rk := rowKey{entity: entity, key: key}
	if err := s.acquire(ctx, t, rk); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return t.visibleRow(rk)
}

func (s *Store) Insert(
	ctx context.Context, txn schema.Txn, entity schema.EntityType, row *schema.RowImage,
) (*schema.RowImage, error) {
	t, err := s.ownTxn(txn)
	if err != nil {
		return nil, err
	}
	key, err := s.tables.KeyOf(entity, row)
	if err != nil {
		return nil, err
	}

	rk := rowKey{entity: entity, key: key}
	if err := s.acquire(ctx, t, rk); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := t.visibleRow(rk); err == nil {
		return nil, ErrDuplicateKey
	}
	t.stage(rk, row)
	return row, nil
}

func (s *Store) Update(
	ctx context.Context, txn schema.Txn, entity schema.EntityType, key schema.Key, row *schema.RowImage,
) (*schema.RowImage, error) {
	t, err := s.ownTxn(txn)
	if err != nil {
		return nil, err
	}

	rk := rowKey{entity: entity, key: key}
	if err := s.acquire(ctx, t, rk); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := t.visibleRow(rk)
	if err != nil {
		return nil, err
	}
	merged := current.Merge(row.Map())
	t.stage(rk, merged)
	return merged, nil
}

func (s *Store) Delete(
	ctx context.Context, txn schema.Txn, entity schema.EntityType, key schema.Key,
) error {
	t, err := s.ownTxn(txn)
	if err != nil {
		return err
	}

	rk := rowKey{entity: entity, key: key}
	if err := s.acquire(ctx, t, rk); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := t.visibleRow(rk); err != nil {
		return err
	}
	t.stage(rk, nil)
	return nil
}

// acquire takes the row lock for the transaction, waiting for other holders
// to commit or roll back. Re-acquiring a held lock is a no-op.
func (s *Store) acquire(ctx context.Context, t *Txn, rk rowKey) error {
	for {
		s.mu.Lock()
		if t.done {
			s.mu.Unlock()
			return ErrTxnDone
		}
		lock, ok := s.locks[rk]
		if !ok {
			s.locks[rk] = &rowLock{owner: t.id, release: make(chan struct{})}
			t.held[rk] = struct{}{}
			s.mu.Unlock()
			return nil
		}
		if lock.owner == t.id {
			s.mu.Unlock()
			return nil
		}
		release := lock.release
		s.mu.Unlock()

		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// releaseLocks drops every lock the transaction holds. Caller must hold s.mu.
func (s *Store) releaseLocks(t *Txn) {
	for rk := range t.held {
		if lock, ok := s.locks[rk]; ok && lock.owner == t.id {
			delete(s.locks, rk)
			close(lock.release)
		}
	}
	t.held = nil
}

func (s *Store) entityRows(entity schema.EntityType) map[schema.Key]*schema.RowImage {
	rows, ok := s.data[entity]
	if !ok {
		rows = make(map[schema.Key]*schema.RowImage)
		s.data[entity] = rows
	}
	return rows
}

func (s *Store) ownTxn(txn schema.Txn) (*Txn, error) {
	t, ok := txn.(*Txn)
	if !ok || t.store != s {
		return nil, ErrForeignTxn
	}
	return t, nil
}
