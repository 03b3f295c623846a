// Package interval implements the effective-dated tenure model. A tenure is a
// half-open interval [started_at, ended_at) asserting that a subject held an
// assignment, position, or employment during that window. For a given
// (subject, dimension, kind) at most one row may be open (ended_at null), and
// rows never overlap. Rows are never deleted; a change closes the open row and
// opens a new one.
package interval

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindEmployment Kind = "employment"
	KindAssignment Kind = "assignment"
	KindPosition   Kind = "position"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEmployment, KindAssignment, KindPosition:
		return true
	}
	return false
}

// Attributes are the caller-settable fields of a tenure. Energy percentage is
// only meaningful for assignment tenures; it stays zero elsewhere.
type Attributes struct {
	AnticipatedEnergyPercentage int
	OfficialRating              *int
}

func (a Attributes) Equal(b Attributes) bool {
	if a.AnticipatedEnergyPercentage != b.AnticipatedEnergyPercentage {
		return false
	}
	if (a.OfficialRating == nil) != (b.OfficialRating == nil) {
		return false
	}
	if a.OfficialRating != nil && *a.OfficialRating != *b.OfficialRating {
		return false
	}
	return true
}

type Tenure struct {
	tenantID    uuid.UUID
	id          uuid.UUID
	subjectID   uuid.UUID
	dimensionID uuid.UUID
	kind        Kind
	startedAt   time.Time
	endedAt     *time.Time
	attributes  Attributes
	createdAt   time.Time
	updatedAt   time.Time
}

func New(tenantID, subjectID, dimensionID uuid.UUID, kind Kind, startedAt time.Time, attrs Attributes) Tenure {
	return Tenure{
		tenantID:    tenantID,
		subjectID:   subjectID,
		dimensionID: dimensionID,
		kind:        kind,
		startedAt:   startedAt,
		attributes:  attrs,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	id uuid.UUID,
	subjectID uuid.UUID,
	dimensionID uuid.UUID,
	kind Kind,
	startedAt time.Time,
	endedAt *time.Time,
	attrs Attributes,
	createdAt time.Time,
	updatedAt time.Time,
) Tenure {
	return Tenure{
		tenantID:    tenantID,
		id:          id,
		subjectID:   subjectID,
		dimensionID: dimensionID,
		kind:        kind,
		startedAt:   startedAt,
		endedAt:     endedAt,
		attributes:  attrs,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (t Tenure) TenantID() uuid.UUID    { return t.tenantID }
func (t Tenure) ID() uuid.UUID          { return t.id }
func (t Tenure) SubjectID() uuid.UUID   { return t.subjectID }
func (t Tenure) DimensionID() uuid.UUID { return t.dimensionID }
func (t Tenure) Kind() Kind             { return t.kind }
func (t Tenure) StartedAt() time.Time   { return t.startedAt }
func (t Tenure) EndedAt() *time.Time    { return t.endedAt }
func (t Tenure) Attributes() Attributes { return t.attributes }
func (t Tenure) CreatedAt() time.Time   { return t.createdAt }
func (t Tenure) UpdatedAt() time.Time   { return t.updatedAt }

func (t Tenure) IsOpen() bool { return t.endedAt == nil }
func (t Tenure) IsZero() bool { return t.id == uuid.Nil && t.subjectID == uuid.Nil }

func (t Tenure) AnticipatedEnergyPercentage() int {
	return t.attributes.AnticipatedEnergyPercentage
}

func (t Tenure) OfficialRating() *int { return t.attributes.OfficialRating }

// Ended returns a copy of the tenure closed at the given boundary.
func (t Tenure) Ended(at time.Time) Tenure {
	t.endedAt = &at
	return t
}

// Overlaps reports whether two tenures for the same key occupy intersecting
// date ranges under half-open semantics.
func (t Tenure) Overlaps(other Tenure) bool {
	endA := t.endedAt
	endB := other.endedAt
	if endA != nil && !endA.After(other.startedAt) {
		return false
	}
	if endB != nil && !endB.After(t.startedAt) {
		return false
	}
	return true
}
