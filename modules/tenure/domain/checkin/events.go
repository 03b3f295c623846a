package checkin

import (
	"time"

	"github.com/google/uuid"
)

// FinalizedEvent is published after a check-in is officially completed.
type FinalizedEvent struct {
	TenantID       uuid.UUID
	CheckInID      uuid.UUID
	SubjectID      uuid.UUID
	DimensionID    uuid.UUID
	Kind           Kind
	OfficialRating int
	FinalizedByID  uuid.UUID
	FinalizedAt    time.Time
}
