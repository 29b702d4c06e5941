// Package hookgate is a mutation hook engine for record stores: it intercepts
// insert, update and delete operations, runs registered hooks before and
// after the primary write, lets BEFORE hooks veto the mutation, and lets
// AFTER hooks add writes (audit rows, history rows) to the same transaction.
//
// The engine does not implement storage. It drives a schema.Store adapter and
// treats its transaction handles as opaque.
package hookgate

import (
	"context"

	"github.com/uptrace/hookgate/internal"
	"github.com/uptrace/hookgate/schema"
)

type (
	// EntityType names a record kind. Alias of schema.EntityType.
	EntityType = schema.EntityType
	// Key identifies a record within an entity. Alias of schema.Key.
	Key = schema.Key
	// RowImage is an immutable field snapshot. Alias of schema.RowImage.
	RowImage = schema.RowImage
	// Store is the record store adapter contract. Alias of schema.Store.
	Store = schema.Store
	// Txn is an opaque transaction handle. Alias of schema.Txn.
	Txn = schema.Txn
)

// Kind is the mutation kind of an event.
type Kind int

const (
	KindInsert Kind = iota
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Phase says whether a hook runs before or after the primary write.
type Phase int

const (
	PhaseBefore Phase = iota
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// MutationEvent describes a single mutation as it flows through the engine.
// Old is absent for inserts, New is absent for deletes. Once BEFORE dispatch
// starts the event is immutable except for field overrides merged into New.
type MutationEvent struct {
	Entity schema.EntityType
	Kind   Kind
	Old    *schema.RowImage
	New    *schema.RowImage

	// Txn is the transaction the mutation runs in. Leave nil to have the
	// engine begin and commit its own transaction around the Apply call.
	Txn schema.Txn

	store  schema.Store
	tables *schema.Tables
}

// Store returns the record store adapter, so hooks can read other records
// within the event's transaction.
func (e *MutationEvent) Store() schema.Store {
	return e.store
}

// Tables returns the entity metadata registry of the engine running the event.
func (e *MutationEvent) Tables() *schema.Tables {
	return e.tables
}

// Key returns the canonical key of the row being mutated.
func (e *MutationEvent) Key() (schema.Key, error) {
	row := e.Old
	if e.Kind == KindInsert {
		row = e.New
	}
	return e.tables.KeyOf(e.Entity, row)
}

// Hook is a function bound to an (entity, kind, phase) slot. BEFORE hooks may
// return Reject or ContinueWith; AFTER hooks may return Fatal. Hooks run
// synchronously on the caller's goroutine, in registration order.
type Hook func(ctx context.Context, e *MutationEvent) HookResult

type resultKind int

const (
	resultContinue resultKind = iota
	resultReject
	resultFatal
)

// HookResult is the outcome of a single hook invocation.
type HookResult struct {
	kind     resultKind
	override map[string]any
	reason   string
	err      error
}

// Continue lets the mutation proceed unchanged.
func Continue() HookResult {
	return HookResult{}
}

// ContinueWith lets the mutation proceed with a field override merged into the
// New image. Later hooks in the same phase observe the merged image. Overrides
// are ignored for deletes and in the AFTER phase.
func ContinueWith(override map[string]any) HookResult {
	return HookResult{override: override}
}

// Reject vetoes the mutation. Valid from BEFORE hooks only; the engine stops
// dispatch immediately and the store is left unchanged.
func Reject(reason string) HookResult {
	return HookResult{kind: resultReject, reason: reason}
}

// Fatal aborts the whole transaction, including a primary write that has
// already been staged. Meant for AFTER hooks whose own writes failed.
func Fatal(err error) HookResult {
	return HookResult{kind: resultFatal, err: err}
}

// SetLogger overwrites the default hookgate logger.
func SetLogger(logger internal.Logging) {
	internal.SetLogger(logger)
}
