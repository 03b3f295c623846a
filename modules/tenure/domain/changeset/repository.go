package changeset

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is implemented by the persistence layer. ListPendingBySubject
// must return snapshots in (created_at, id) ascending order; pending-change
// resolution depends on that ordering and on nothing else. LockPendingByID
// must run inside the caller's transaction and blocks (not fails) on
// contention.
type Repository interface {
	Insert(ctx context.Context, s Snapshot) (Snapshot, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	LockPendingByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	ListPendingBySubject(ctx context.Context, subjectID uuid.UUID) ([]Snapshot, error)
	UpdateResolved(ctx context.Context, id uuid.UUID, deltas []Delta, data Data, phase Phase) (Snapshot, error)
	MarkExecuted(ctx context.Context, id uuid.UUID, effectiveDate time.Time) (Snapshot, error)
	Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) (Snapshot, error)
	DeletePending(ctx context.Context, id uuid.UUID) error
}
