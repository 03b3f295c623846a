package changeset

import (
	"time"

	"github.com/google/uuid"
)

// ExecutedEvent is published on the event bus after a snapshot's transaction
// commits.
type ExecutedEvent struct {
	TenantID      uuid.UUID
	SnapshotID    uuid.UUID
	SubjectID     uuid.UUID
	ChangeType    ChangeType
	ExecutedByID  uuid.UUID
	EffectiveDate time.Time
}
