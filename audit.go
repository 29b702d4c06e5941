package hookgate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/uptrace/hookgate/internal"
	"github.com/uptrace/hookgate/schema"
)

// FieldMapper builds the audit row to insert from the old and/or new image of
// the source mutation.
type FieldMapper func(old, new *schema.RowImage) map[string]any

type auditSink struct {
	entity         schema.EntityType
	mapper         FieldMapper
	timestampField string
	sourceEntity   string
	sourceKey      string
	skipUnchanged  bool
	skipFields     []string
	now            func() time.Time
}

type AuditOption func(*auditSink)

// WithTimestampField renames the audit timestamp column. Default
// "recorded_at"; empty disables the timestamp.
func WithTimestampField(name string) AuditOption {
	return func(s *auditSink) {
		s.timestampField = name
	}
}

// WithSourceFields renames the columns recording the source entity and key.
// Either may be empty to drop that column.
func WithSourceFields(entityField, keyField string) AuditOption {
	return func(s *auditSink) {
		s.sourceEntity = entityField
		s.sourceKey = keyField
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) AuditOption {
	return func(s *auditSink) {
		s.now = now
	}
}

// SkipUnchanged suppresses the audit row for updates that did not change the
// given fields (all shared fields when none are named). Off by default: the
// sink records no-op updates too.
func SkipUnchanged(fields ...string) AuditOption {
	return func(s *auditSink) {
		s.skipUnchanged = true
		s.skipFields = fields
	}
}

// NewAuditHook builds an AFTER hook that inserts one audit row per mutation
// into auditEntity, through the event's own transaction. The sink never
// rejects; a failed insert aborts the whole transaction as a storage failure.
func NewAuditHook(auditEntity schema.EntityType, mapper FieldMapper, opts ...AuditOption) Hook {
	sink := &auditSink{
		entity:         auditEntity,
		mapper:         mapper,
		timestampField: "recorded_at",
		sourceEntity:   "source_entity",
		sourceKey:      "source_key",
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink.hook
}

func (s *auditSink) hook(ctx context.Context, e *MutationEvent) HookResult {
	if s.skipUnchanged && e.Kind == KindUpdate && e.Old.Equal(e.New, s.skipFields...) {
		return Continue()
	}

	fields := s.mapper(e.Old, e.New)
	if keyField := e.Tables().Get(s.entity).KeyField; fields[keyField] == nil {
		// Audit rows are append-only; give them a key of their own.
		fields[keyField] = uuid.NewString()
	}
	if s.timestampField != "" {
		fields[s.timestampField] = s.now()
	}
	if s.sourceEntity != "" {
		fields[s.sourceEntity] = string(e.Entity)
	}
	if s.sourceKey != "" {
		if key, err := e.Key(); err == nil {
			fields[s.sourceKey] = string(key)
		}
	}

	_, err := e.Store().Insert(ctx, e.Txn, s.entity, schema.NewRowImage(fields))
	if err != nil {
		return Fatal(&StorageError{Op: "audit insert", Err: err})
	}
	return Continue()
}

// SnapshotOld copies every field of the old image into the audit row; for
// inserts, which have no old image, the new image is copied instead. This is
// the whole-row deletion audit.
func SnapshotOld() FieldMapper {
	return func(old, new *schema.RowImage) map[string]any {
		row := old
		if row == nil {
			row = new
		}
		return row.Map()
	}
}

// FieldDiff records one field's transition, e.g.
// FieldDiff("salario", "salario_anterior", "salario_nuevo").
func FieldDiff(field, oldCol, newCol string) FieldMapper {
	return func(old, new *schema.RowImage) map[string]any {
		fields := make(map[string]any, 2)
		if old != nil {
			fields[oldCol] = old.Value(field)
		}
		if new != nil {
			fields[newCol] = new.Value(field)
		}
		return fields
	}
}

// PackedSnapshot archives the msgpack-encoded old image (new for inserts) in
// a single column.
func PackedSnapshot(col string) FieldMapper {
	return func(old, new *schema.RowImage) map[string]any {
		row := old
		if row == nil {
			row = new
		}
		packed, err := schema.PackRow(row)
		if err != nil {
			// PackRow only fails on unencodable values; record the rendered
			// image rather than losing the audit row.
			return map[string]any{col: row.String()}
		}
		return map[string]any{col: packed}
	}
}

// AuditEntityFor derives the conventional audit entity name for a source
// entity: pluralized, underscored, with an "_audit" suffix.
// "ProductOrder" becomes "product_orders_audit".
func AuditEntityFor(entity schema.EntityType) schema.EntityType {
	name := internal.Underscore(string(entity))
	return schema.EntityType(inflection.Plural(name) + "_audit")
}
