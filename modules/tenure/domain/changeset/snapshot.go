// Package changeset implements the change snapshot: an immutable bundle of
// proposed deltas plus a point-in-time copy of the state they compare
// against. Snapshots are staged, reviewed, then executed exactly once (or
// discarded); a snapshot with a nil effective date is pending.
package changeset

import (
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	TypeAssignmentManagement     ChangeType = "assignment_management"
	TypeBulkCheckInFinalization  ChangeType = "bulk_check_in_finalization"
	TypePositionTenure           ChangeType = "position_tenure"
	TypeMilestoneManagement      ChangeType = "milestone_management"
	TypeAspirationManagement     ChangeType = "aspiration_management"
	TypeExploration              ChangeType = "exploration"
)

func (t ChangeType) Valid() bool {
	switch t {
	case TypeAssignmentManagement, TypeBulkCheckInFinalization, TypePositionTenure,
		TypeMilestoneManagement, TypeAspirationManagement, TypeExploration:
		return true
	}
	return false
}

// Phase tracks the snapshot build lifecycle explicitly instead of inferring
// it from data nullability.
type Phase string

const (
	PhaseDraft        Phase = "draft"
	PhaseDataResolved Phase = "data_resolved"
	PhaseExecuted     Phase = "executed"
)

// Provenance is the audit trail of the request that staged the change.
type Provenance struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
}

// FieldComparison is one entry of the materialized snapshot data: what the
// field's effective-current value was when the proposal was built, next to
// the proposed value.
type FieldComparison struct {
	Key           FieldKey  `json:"key"`
	DeltaKind     DeltaKind `json:"delta_kind"`
	CurrentValue  any       `json:"current_value"`
	ProposedValue any       `json:"proposed_value"`
}

// Data is the full materialized comparison state, built either at creation
// (single-phase) or by a per-change-type processor (two-phase).
type Data struct {
	CapturedAt time.Time         `json:"captured_at"`
	Fields     []FieldComparison `json:"fields"`
}

type Snapshot struct {
	tenantID    uuid.UUID
	id          uuid.UUID
	subjectID   uuid.UUID
	createdByID uuid.UUID
	changeType  ChangeType
	reason      string
	provenance  Provenance
	deltas      []Delta
	data        *Data
	phase       Phase

	effectiveDate          *time.Time
	employeeAcknowledgedAt *time.Time
	createdAt              time.Time
}

func New(
	tenantID, subjectID, createdByID uuid.UUID,
	changeType ChangeType,
	reason string,
	provenance Provenance,
	deltas []Delta,
	data *Data,
) Snapshot {
	phase := PhaseDraft
	if data != nil {
		phase = PhaseDataResolved
	}
	return Snapshot{
		tenantID:    tenantID,
		subjectID:   subjectID,
		createdByID: createdByID,
		changeType:  changeType,
		reason:      reason,
		provenance:  provenance,
		deltas:      deltas,
		data:        data,
		phase:       phase,
	}
}

func Hydrate(
	tenantID uuid.UUID,
	id uuid.UUID,
	subjectID uuid.UUID,
	createdByID uuid.UUID,
	changeType ChangeType,
	reason string,
	provenance Provenance,
	deltas []Delta,
	data *Data,
	phase Phase,
	effectiveDate *time.Time,
	employeeAcknowledgedAt *time.Time,
	createdAt time.Time,
) Snapshot {
	return Snapshot{
		tenantID:               tenantID,
		id:                     id,
		subjectID:              subjectID,
		createdByID:            createdByID,
		changeType:             changeType,
		reason:                 reason,
		provenance:             provenance,
		deltas:                 deltas,
		data:                   data,
		phase:                  phase,
		effectiveDate:          effectiveDate,
		employeeAcknowledgedAt: employeeAcknowledgedAt,
		createdAt:              createdAt,
	}
}

func (s Snapshot) TenantID() uuid.UUID      { return s.tenantID }
func (s Snapshot) ID() uuid.UUID            { return s.id }
func (s Snapshot) SubjectID() uuid.UUID     { return s.subjectID }
func (s Snapshot) CreatedByID() uuid.UUID   { return s.createdByID }
func (s Snapshot) ChangeType() ChangeType   { return s.changeType }
func (s Snapshot) Reason() string           { return s.reason }
func (s Snapshot) RequestProvenance() Provenance { return s.provenance }
func (s Snapshot) Deltas() []Delta          { return s.deltas }
func (s Snapshot) Data() *Data              { return s.data }
func (s Snapshot) Phase() Phase             { return s.phase }
func (s Snapshot) EffectiveDate() *time.Time { return s.effectiveDate }
func (s Snapshot) EmployeeAcknowledgedAt() *time.Time { return s.employeeAcknowledgedAt }
func (s Snapshot) CreatedAt() time.Time     { return s.createdAt }

// Pending reports whether the snapshot has not been executed yet. The nil
// effective date is the single source of truth for pendingness.
func (s Snapshot) Pending() bool { return s.effectiveDate == nil }

// WithData returns the snapshot with materialized data filled in, advancing a
// draft to the data-resolved phase.
func (s Snapshot) WithData(data Data) Snapshot {
	s.data = &data
	if s.phase == PhaseDraft {
		s.phase = PhaseDataResolved
	}
	return s
}

// DeltaFor returns the snapshot's delta targeting the given field key, if any.
// Later deltas in the bundle win over earlier ones for the same key.
func (s Snapshot) DeltaFor(key FieldKey) (Delta, bool) {
	var found Delta
	ok := false
	for _, d := range s.deltas {
		if d.Key() == key {
			found = d
			ok = true
		}
	}
	return found, ok
}
