package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
)

// PendingChangeResolver computes a field's effective-current value: the
// persisted value with every still-pending snapshot's deltas folded on top,
// in snapshot creation order. Later pending snapshots win over earlier ones;
// all pending snapshots win over the database value. The resolver is strictly
// read-only.
type PendingChangeResolver struct {
	snapshots changeset.Repository
}

func NewPendingChangeResolver(snapshots changeset.Repository) *PendingChangeResolver {
	return &PendingChangeResolver{snapshots: snapshots}
}

func (r *PendingChangeResolver) EffectiveValue(ctx context.Context, subjectID uuid.UUID, key changeset.FieldKey, dbValue any) (any, error) {
	return r.EffectiveValueExcluding(ctx, subjectID, key, dbValue, uuid.Nil)
}

// EffectiveValueExcluding skips the snapshot with the given id during the
// fold. A draft being resolved is itself already pending and must not see its
// own staged deltas as the effective-current value.
func (r *PendingChangeResolver) EffectiveValueExcluding(ctx context.Context, subjectID uuid.UUID, key changeset.FieldKey, dbValue any, excludeID uuid.UUID) (any, error) {
	pending, err := r.snapshots.ListPendingBySubject(ctx, subjectID)
	if err != nil {
		return nil, mapPgError(err)
	}
	result := dbValue
	for _, s := range pending {
		if s.ID() == excludeID {
			continue
		}
		if d, ok := s.DeltaFor(key); ok {
			result = d.Value()
		}
	}
	return result, nil
}
