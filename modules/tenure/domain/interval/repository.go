package interval

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is implemented by the persistence layer. Lookups return a nil
// tenure (not an error) when no matching row exists. Writes must run inside
// the caller's transaction; only the change execution path and check-in
// self-service are allowed to reach them.
type Repository interface {
	Open(ctx context.Context, subjectID, dimensionID uuid.UUID, kind Kind) (*Tenure, error)
	MostRecent(ctx context.Context, subjectID, dimensionID uuid.UUID, kind Kind) (*Tenure, error)
	ListBySubject(ctx context.Context, subjectID uuid.UUID, kind Kind) ([]Tenure, error)
	Insert(ctx context.Context, t Tenure) (Tenure, error)
	End(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}
