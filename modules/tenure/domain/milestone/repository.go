package milestone

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Milestone, error)
	ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]Milestone, error)
	Upsert(ctx context.Context, m Milestone) (Milestone, error)
}
