package checkin

import (
	"context"

	"github.com/google/uuid"
)

// Repository is implemented by the persistence layer. FindOpen returns nil
// when no open (not officially completed) check-in exists for the key; at most
// one such row exists per (subject, dimension, kind).
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*CheckIn, error)
	FindOpen(ctx context.Context, subjectID, dimensionID uuid.UUID, kind Kind) (*CheckIn, error)
	ListOpenBySubject(ctx context.Context, subjectID uuid.UUID) ([]CheckIn, error)
	Insert(ctx context.Context, c CheckIn) (CheckIn, error)
	Update(ctx context.Context, c CheckIn) (CheckIn, error)
}
