package hookgate

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/uptrace/hookgate/schema"
)

// HookHandle identifies a registration so it can be removed later.
type HookHandle string

type registryKey struct {
	entity schema.EntityType
	kind   Kind
	phase  Phase
}

type registeredHook struct {
	handle HookHandle
	rank   int
	seq    uint64
	fn     Hook
}

type hookList struct {
	hooks []*registeredHook
	fns   []Hook
}

// Registry holds the ordered hook lists, one per (entity, kind, phase) slot.
// Lookup is lock-free and safe under concurrent dispatch. Register and
// Unregister are administrative: they are serialized with each other and fail
// with ErrRegistryLocked while any dispatch is running.
type Registry struct {
	lists   *xsync.MapOf[registryKey, *hookList]
	handles *xsync.MapOf[HookHandle, registryKey]

	mu          sync.Mutex
	seq         uint64
	dispatching atomic.Int32
}

func NewRegistry() *Registry {
	return &Registry{
		lists:   xsync.NewMapOf[registryKey, *hookList](),
		handles: xsync.NewMapOf[HookHandle, registryKey](),
	}
}

// RegisterOption configures a single registration.
type RegisterOption func(*registeredHook)

// WithRank orders the hook explicitly. Hooks with equal rank keep their
// registration order; the default rank is 0.
func WithRank(rank int) RegisterOption {
	return func(h *registeredHook) {
		h.rank = rank
	}
}

// WithHandle registers the hook under a caller-chosen handle instead of a
// generated one. Registering the same handle twice fails with
// ErrDuplicateHandle.
func WithHandle(handle HookHandle) RegisterOption {
	return func(h *registeredHook) {
		h.handle = handle
	}
}

// Register appends a hook to the (entity, kind, phase) slot and returns its
// handle. Hooks run in (rank, registration) order.
func (r *Registry) Register(
	entity schema.EntityType, kind Kind, phase Phase, hook Hook, opts ...RegisterOption,
) (HookHandle, error) {
	if r.dispatching.Load() > 0 {
		return "", ErrRegistryLocked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	reg := &registeredHook{
		handle: HookHandle(uuid.NewString()),
		seq:    r.seq,
		fn:     hook,
	}
	for _, opt := range opts {
		opt(reg)
	}

	if _, dup := r.handles.Load(reg.handle); dup {
		return "", ErrDuplicateHandle
	}

	key := registryKey{entity: entity, kind: kind, phase: phase}
	r.handles.Store(reg.handle, key)
	r.storeList(key, r.insertSorted(key, reg))

	return reg.handle, nil
}

// Unregister removes a previously registered hook. Unknown handles are a
// no-op. Like Register, it is rejected while a dispatch is in flight.
func (r *Registry) Unregister(handle HookHandle) error {
	if r.dispatching.Load() > 0 {
		return ErrRegistryLocked
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.handles.Load(handle)
	if !ok {
		return nil
	}
	r.handles.Delete(handle)

	list, _ := r.lists.Load(key)
	if list == nil {
		return nil
	}
	hooks := make([]*registeredHook, 0, len(list.hooks)-1)
	for _, h := range list.hooks {
		if h.handle != handle {
			hooks = append(hooks, h)
		}
	}
	r.storeList(key, hooks)
	return nil
}

// Lookup returns the hooks for a slot in execution order. An empty slice when
// nothing is registered; no locking, no allocation.
func (r *Registry) Lookup(entity schema.EntityType, kind Kind, phase Phase) []Hook {
	list, ok := r.lists.Load(registryKey{entity: entity, kind: kind, phase: phase})
	if !ok {
		return nil
	}
	return list.fns
}

func (r *Registry) insertSorted(key registryKey, reg *registeredHook) []*registeredHook {
	var prev []*registeredHook
	if list, ok := r.lists.Load(key); ok {
		prev = list.hooks
	}
	hooks := make([]*registeredHook, 0, len(prev)+1)
	hooks = append(hooks, prev...)
	hooks = append(hooks, reg)
	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].rank != hooks[j].rank {
			return hooks[i].rank < hooks[j].rank
		}
		return hooks[i].seq < hooks[j].seq
	})
	return hooks
}

// storeList publishes a copy-on-write snapshot so in-flight Lookups keep
// iterating their own slice.
func (r *Registry) storeList(key registryKey, hooks []*registeredHook) {
	if len(hooks) == 0 {
		r.lists.Delete(key)
		return
	}
	fns := make([]Hook, len(hooks))
	for i, h := range hooks {
		fns[i] = h.fn
	}
	r.lists.Store(key, &hookList{hooks: hooks, fns: fns})
}

func (r *Registry) beginDispatch() {
	r.dispatching.Add(1)
}

func (r *Registry) endDispatch() {
	r.dispatching.Add(-1)
}
