// Package checkin implements the two-sided check-in record: employee and
// manager each answer and complete their side independently; once both sides
// are complete the check-in can be officially finalized with a rating. A
// finalized check-in is immutable except for acknowledgement; further edits
// start a new open check-in for the same (subject, dimension) key.
package checkin

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAssignment Kind = "assignment"
	KindPosition   Kind = "position"
	KindAspiration Kind = "aspiration"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAssignment, KindPosition, KindAspiration:
		return true
	}
	return false
}

type Side string

const (
	SideEmployee Side = "employee"
	SideManager  Side = "manager"
)

type State string

const (
	StateEmpty              State = "empty"
	StateEmployeeInProgress State = "employee_in_progress"
	StateManagerInProgress  State = "manager_in_progress"
	StateBothPending        State = "both_pending"
	StateFinalized          State = "finalized"
)

type CheckIn struct {
	tenantID    uuid.UUID
	id          uuid.UUID
	subjectID   uuid.UUID
	dimensionID uuid.UUID
	kind        Kind

	employeeRating       *int
	employeePrivateNotes string
	employeeCompletedAt  *time.Time

	managerRating       *int
	managerPrivateNotes string
	managerCompletedAt  *time.Time

	officialRating      *int
	sharedNotes         string
	officialCompletedAt *time.Time
	finalizedByID       uuid.UUID

	employeeAcknowledgedAt *time.Time

	createdAt time.Time
	updatedAt time.Time
}

func New(tenantID, subjectID, dimensionID uuid.UUID, kind Kind) CheckIn {
	return CheckIn{
		tenantID:    tenantID,
		subjectID:   subjectID,
		dimensionID: dimensionID,
		kind:        kind,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	id uuid.UUID,
	subjectID uuid.UUID,
	dimensionID uuid.UUID,
	kind Kind,
	employeeRating *int,
	employeePrivateNotes string,
	employeeCompletedAt *time.Time,
	managerRating *int,
	managerPrivateNotes string,
	managerCompletedAt *time.Time,
	officialRating *int,
	sharedNotes string,
	officialCompletedAt *time.Time,
	finalizedByID uuid.UUID,
	employeeAcknowledgedAt *time.Time,
	createdAt time.Time,
	updatedAt time.Time,
) CheckIn {
	return CheckIn{
		tenantID:               tenantID,
		id:                     id,
		subjectID:              subjectID,
		dimensionID:            dimensionID,
		kind:                   kind,
		employeeRating:         employeeRating,
		employeePrivateNotes:   employeePrivateNotes,
		employeeCompletedAt:    employeeCompletedAt,
		managerRating:          managerRating,
		managerPrivateNotes:    managerPrivateNotes,
		managerCompletedAt:     managerCompletedAt,
		officialRating:         officialRating,
		sharedNotes:            sharedNotes,
		officialCompletedAt:    officialCompletedAt,
		finalizedByID:          finalizedByID,
		employeeAcknowledgedAt: employeeAcknowledgedAt,
		createdAt:              createdAt,
		updatedAt:              updatedAt,
	}
}

func (c CheckIn) TenantID() uuid.UUID              { return c.tenantID }
func (c CheckIn) ID() uuid.UUID                    { return c.id }
func (c CheckIn) SubjectID() uuid.UUID             { return c.subjectID }
func (c CheckIn) DimensionID() uuid.UUID           { return c.dimensionID }
func (c CheckIn) Kind() Kind                       { return c.kind }
func (c CheckIn) EmployeeRating() *int             { return c.employeeRating }
func (c CheckIn) EmployeePrivateNotes() string     { return c.employeePrivateNotes }
func (c CheckIn) EmployeeCompletedAt() *time.Time  { return c.employeeCompletedAt }
func (c CheckIn) ManagerRating() *int              { return c.managerRating }
func (c CheckIn) ManagerPrivateNotes() string      { return c.managerPrivateNotes }
func (c CheckIn) ManagerCompletedAt() *time.Time   { return c.managerCompletedAt }
func (c CheckIn) OfficialRating() *int             { return c.officialRating }
func (c CheckIn) SharedNotes() string              { return c.sharedNotes }
func (c CheckIn) OfficialCompletedAt() *time.Time  { return c.officialCompletedAt }
func (c CheckIn) FinalizedByID() uuid.UUID         { return c.finalizedByID }
func (c CheckIn) EmployeeAcknowledgedAt() *time.Time { return c.employeeAcknowledgedAt }
func (c CheckIn) CreatedAt() time.Time             { return c.createdAt }
func (c CheckIn) UpdatedAt() time.Time             { return c.updatedAt }

func (c CheckIn) IsZero() bool      { return c.id == uuid.Nil && c.subjectID == uuid.Nil }
func (c CheckIn) IsFinalized() bool { return c.officialCompletedAt != nil }

func (c CheckIn) State() State {
	switch {
	case c.IsFinalized():
		return StateFinalized
	case c.employeeCompletedAt != nil && c.managerCompletedAt != nil:
		return StateBothPending
	case c.employeeCompletedAt != nil || c.employeeRating != nil || c.employeePrivateNotes != "":
		return StateEmployeeInProgress
	case c.managerCompletedAt != nil || c.managerRating != nil || c.managerPrivateNotes != "":
		return StateManagerInProgress
	default:
		return StateEmpty
	}
}

// ReadyForFinalization reports whether both sides are complete and no official
// completion has happened yet.
func (c CheckIn) ReadyForFinalization() bool {
	return c.employeeCompletedAt != nil && c.managerCompletedAt != nil && c.officialCompletedAt == nil
}

// CompleteSide marks the given side complete. Re-completing an already
// completed side is a no-op so repeated submissions never move the timestamp.
func (c CheckIn) CompleteSide(side Side, now time.Time) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	switch side {
	case SideEmployee:
		if c.employeeCompletedAt == nil {
			c.employeeCompletedAt = &now
		}
	case SideManager:
		if c.managerCompletedAt == nil {
			c.managerCompletedAt = &now
		}
	default:
		return c, ErrUnknownSide
	}
	return c, nil
}

// UncompleteSide clears a side's completion timestamp; only legal while the
// check-in has not been officially completed.
func (c CheckIn) UncompleteSide(side Side) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	switch side {
	case SideEmployee:
		c.employeeCompletedAt = nil
	case SideManager:
		c.managerCompletedAt = nil
	default:
		return c, ErrUnknownSide
	}
	return c, nil
}

func (c CheckIn) SetRating(side Side, rating *int) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	switch side {
	case SideEmployee:
		c.employeeRating = rating
	case SideManager:
		c.managerRating = rating
	default:
		return c, ErrUnknownSide
	}
	return c, nil
}

func (c CheckIn) SetPrivateNotes(side Side, notes string) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	switch side {
	case SideEmployee:
		c.employeePrivateNotes = notes
	case SideManager:
		c.managerPrivateNotes = notes
	default:
		return c, ErrUnknownSide
	}
	return c, nil
}

func (c CheckIn) SetSharedNotes(notes string) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	c.sharedNotes = notes
	return c, nil
}

// SaveOfficialRating records the official rating without closing the check-in,
// keeping it open for further edits.
func (c CheckIn) SaveOfficialRating(rating int) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	c.officialRating = &rating
	return c, nil
}

// Finalize officially completes the check-in. Both sides must be complete;
// violating that is a caller error surfaced as ErrNotReady, never a clamp.
func (c CheckIn) Finalize(rating int, finalizedBy uuid.UUID, now time.Time) (CheckIn, error) {
	if c.IsFinalized() {
		return c, ErrAlreadyFinalized
	}
	if !c.ReadyForFinalization() {
		return c, ErrNotReady
	}
	c.officialRating = &rating
	c.officialCompletedAt = &now
	c.finalizedByID = finalizedBy
	return c, nil
}

// Acknowledge is the only mutation permitted after finalization.
func (c CheckIn) Acknowledge(now time.Time) CheckIn {
	if c.employeeAcknowledgedAt == nil {
		c.employeeAcknowledgedAt = &now
	}
	return c
}
