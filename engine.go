package hookgate

import (
	"context"
	"sync/atomic"

	"github.com/uptrace/hookgate/internal"
	"github.com/uptrace/hookgate/schema"
)

// EngineStats holds per-engine counters.
type EngineStats struct {
	Applied  uint32
	Rejected uint32
	Errors   uint32
}

// Engine is the mutation coordinator. It owns a hook registry and drives a
// record store adapter: one Apply call is one atomic unit of BEFORE hooks,
// primary write, and AFTER hooks.
type Engine struct {
	store    schema.Store
	tables   *schema.Tables
	registry *Registry

	applyHooks []ApplyHook

	stats EngineStats
}

type Option func(*Engine)

// WithTables supplies a pre-populated entity metadata registry.
func WithTables(tables *schema.Tables) Option {
	return func(e *Engine) {
		e.tables = tables
	}
}

func New(store schema.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		tables:   schema.NewTables(),
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() schema.Store {
	return e.store
}

func (e *Engine) Tables() *schema.Tables {
	return e.tables
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// RegisterHook binds a hook to an (entity, kind, phase) slot.
func (e *Engine) RegisterHook(
	entity schema.EntityType, kind Kind, phase Phase, hook Hook, opts ...RegisterOption,
) (HookHandle, error) {
	return e.registry.Register(entity, kind, phase, hook, opts...)
}

// UnregisterHook removes a hook. Administrative; fails mid-dispatch.
func (e *Engine) UnregisterHook(handle HookHandle) error {
	return e.registry.Unregister(handle)
}

// AddApplyHook attaches an observer hook that sees every Apply call. Observer
// hooks instrument; they cannot veto or write.
func (e *Engine) AddApplyHook(hook ApplyHook) {
	e.applyHooks = append(e.applyHooks, hook)
}

func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Applied:  atomic.LoadUint32(&e.stats.Applied),
		Rejected: atomic.LoadUint32(&e.stats.Rejected),
		Errors:   atomic.LoadUint32(&e.stats.Errors),
	}
}

// Apply runs one mutation through the engine and returns the final row image:
// the stored row for inserts and updates, the old image for deletes.
//
// When event.Txn is nil the engine begins its own transaction and commits it
// on success. When the caller supplies an open transaction, success leaves it
// open for the caller to commit; any rejection or failure rolls it back, so a
// multi-Apply transaction aborts as a whole.
//
// Validation failures (ErrMalformedEvent) are reported before the transaction
// is touched and leave a caller-supplied transaction open.
func (e *Engine) Apply(ctx context.Context, event *MutationEvent) (*schema.RowImage, error) {
	if err := validateEvent(event); err != nil {
		atomic.AddUint32(&e.stats.Errors, 1)
		return nil, err
	}

	event.store = e.store
	event.tables = e.tables

	ownTxn := event.Txn == nil
	if ownTxn {
		txn, err := e.store.Begin(ctx)
		if err != nil {
			atomic.AddUint32(&e.stats.Errors, 1)
			return nil, &StorageError{Op: "begin", Err: err}
		}
		event.Txn = txn
	}

	e.registry.beginDispatch()
	applyCtx, applyEvent := e.beforeApply(ctx, event)

	row, err := e.run(applyCtx, event)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if err != nil {
		e.abort(event.Txn)
	} else if ownTxn {
		if commitErr := e.store.Commit(event.Txn); commitErr != nil {
			err = &StorageError{Op: "commit", Err: commitErr}
		}
	}

	e.countOutcome(err)
	e.afterApply(applyCtx, applyEvent, row, err)
	e.registry.endDispatch()

	if err != nil {
		return nil, err
	}
	return row, nil
}

func (e *Engine) run(ctx context.Context, event *MutationEvent) (*schema.RowImage, error) {
	for _, hook := range e.registry.Lookup(event.Entity, event.Kind, PhaseBefore) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := hook(ctx, event)
		switch res.kind {
		case resultReject:
			return nil, &MutationRejectedError{
				Entity: event.Entity,
				Kind:   event.Kind,
				Reason: res.reason,
			}
		case resultFatal:
			// A BEFORE hook has nothing staged to make fatal; the error still
			// vetoes the mutation.
			return nil, &MutationRejectedError{
				Entity: event.Entity,
				Kind:   event.Kind,
				Reason: res.err.Error(),
			}
		}
		if res.override != nil && event.Kind != KindDelete {
			event.New = event.New.Merge(res.override)
		}
	}

	row, err := e.write(ctx, event)
	if err != nil {
		return nil, err
	}

	for _, hook := range e.registry.Lookup(event.Entity, event.Kind, PhaseAfter) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := hook(ctx, event)
		switch res.kind {
		case resultFatal:
			return nil, &PostHookFailedError{Err: res.err}
		case resultReject:
			return nil, &PostHookFailedError{Err: ErrAfterReject}
		}
	}

	return row, nil
}

func (e *Engine) write(ctx context.Context, event *MutationEvent) (*schema.RowImage, error) {
	switch event.Kind {
	case KindInsert:
		row, err := e.store.Insert(ctx, event.Txn, event.Entity, event.New)
		if err != nil {
			return nil, &StorageError{Op: "insert", Err: err}
		}
		event.New = row
		return row, nil

	case KindUpdate:
		key, err := e.tables.KeyOf(event.Entity, event.Old)
		if err != nil {
			return nil, err
		}
		row, err := e.store.Update(ctx, event.Txn, event.Entity, key, event.New)
		if err != nil {
			return nil, &StorageError{Op: "update", Err: err}
		}
		event.New = row
		return row, nil

	case KindDelete:
		key, err := e.tables.KeyOf(event.Entity, event.Old)
		if err != nil {
			return nil, err
		}
		if err := e.store.Delete(ctx, event.Txn, event.Entity, key); err != nil {
			return nil, &StorageError{Op: "delete", Err: err}
		}
		return event.Old, nil
	}
	return nil, ErrMalformedEvent
}

func (e *Engine) abort(txn schema.Txn) {
	if err := e.store.Rollback(txn); err != nil {
		internal.Logger.Printf(context.TODO(), "hookgate: rollback failed: %s", err)
	}
}

func (e *Engine) countOutcome(err error) {
	switch err.(type) {
	case nil:
		atomic.AddUint32(&e.stats.Applied, 1)
	case *MutationRejectedError:
		atomic.AddUint32(&e.stats.Rejected, 1)
	default:
		atomic.AddUint32(&e.stats.Errors, 1)
	}
}

func validateEvent(event *MutationEvent) error {
	switch event.Kind {
	case KindInsert:
		if event.New == nil || event.Old != nil {
			return ErrMalformedEvent
		}
	case KindUpdate:
		if event.New == nil || event.Old == nil {
			return ErrMalformedEvent
		}
	case KindDelete:
		if event.Old == nil || event.New != nil {
			return ErrMalformedEvent
		}
	default:
		return ErrMalformedEvent
	}
	return nil
}
