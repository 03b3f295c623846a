package changeset

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/domain/milestone"
)

type DeltaKind string

const (
	DeltaAssignmentEnergy DeltaKind = "assignment_energy"
	DeltaTenureEnd        DeltaKind = "tenure_end"
	DeltaPositionTenure   DeltaKind = "position_tenure"
	DeltaCheckInField     DeltaKind = "check_in_field"
	DeltaMilestone        DeltaKind = "milestone"
)

// FieldKey identifies a proposed field within a subject's state: the dimension
// instance (assignment, position, check-in dimension, milestone) plus the
// field name. Pending resolution and no-op suppression both key on it.
type FieldKey struct {
	DimensionID uuid.UUID `json:"dimension_id"`
	Field       string    `json:"field"`
}

// Delta is one proposed change. Implementations form a closed tagged union;
// raw request payloads are validated into one of them at the boundary before
// entering the resolver or builder.
type Delta interface {
	Kind() DeltaKind
	Key() FieldKey
	Value() any
	Validate() error
}

const (
	FieldAnticipatedEnergyPercentage = "anticipated_energy_percentage"
	FieldEndedAt                     = "ended_at"
	FieldHeld                        = "held"

	FieldEmployeeRating       = "employee_rating"
	FieldEmployeePrivateNotes = "employee_private_notes"
	FieldEmployeeCompleted    = "employee_completed"
	FieldManagerRating        = "manager_rating"
	FieldManagerPrivateNotes  = "manager_private_notes"
	FieldManagerCompleted     = "manager_completed"
	FieldOfficialRating       = "official_rating"
	FieldSharedNotes          = "shared_notes"
	FieldFinalize             = "finalize"
)

// AssignmentEnergyDelta proposes a new anticipated energy percentage for the
// subject's tenure on one assignment.
type AssignmentEnergyDelta struct {
	AssignmentID     uuid.UUID `json:"assignment_id"`
	EnergyPercentage int       `json:"energy_percentage"`
}

func (d AssignmentEnergyDelta) Kind() DeltaKind { return DeltaAssignmentEnergy }
func (d AssignmentEnergyDelta) Key() FieldKey {
	return FieldKey{DimensionID: d.AssignmentID, Field: FieldAnticipatedEnergyPercentage}
}
func (d AssignmentEnergyDelta) Value() any { return d.EnergyPercentage }
func (d AssignmentEnergyDelta) Validate() error {
	if d.AssignmentID == uuid.Nil {
		return fmt.Errorf("assignment_id is required")
	}
	if d.EnergyPercentage < 0 || d.EnergyPercentage > 100 {
		return fmt.Errorf("energy_percentage must be within 0..100, got %d", d.EnergyPercentage)
	}
	return nil
}

// TenureEndDelta proposes ending the open tenure on a dimension without
// opening a successor (termination, assignment wind-down, bypass path).
type TenureEndDelta struct {
	TenureKind  interval.Kind `json:"tenure_kind"`
	DimensionID uuid.UUID     `json:"dimension_id"`
	EndDate     time.Time     `json:"end_date"`
}

func (d TenureEndDelta) Kind() DeltaKind { return DeltaTenureEnd }
func (d TenureEndDelta) Key() FieldKey {
	return FieldKey{DimensionID: d.DimensionID, Field: FieldEndedAt}
}
func (d TenureEndDelta) Value() any { return d.EndDate.UTC().Format("2006-01-02") }
func (d TenureEndDelta) Validate() error {
	if !d.TenureKind.Valid() {
		return fmt.Errorf("tenure_kind %q is invalid", d.TenureKind)
	}
	if d.DimensionID == uuid.Nil {
		return fmt.Errorf("dimension_id is required")
	}
	if d.EndDate.IsZero() {
		return fmt.Errorf("end_date is required")
	}
	return nil
}

// PositionTenureDelta proposes that the subject holds the given position from
// the execution's effective date, superseding any open position tenure.
type PositionTenureDelta struct {
	PositionID uuid.UUID `json:"position_id"`
}

func (d PositionTenureDelta) Kind() DeltaKind { return DeltaPositionTenure }
func (d PositionTenureDelta) Key() FieldKey {
	return FieldKey{DimensionID: d.PositionID, Field: FieldHeld}
}
func (d PositionTenureDelta) Value() any { return true }
func (d PositionTenureDelta) Validate() error {
	if d.PositionID == uuid.Nil {
		return fmt.Errorf("position_id is required")
	}
	return nil
}

// CheckInFieldDelta proposes a single field change on the open check-in for
// (dimension, kind). FieldFinalize carries the official rating and closes the
// check-in on execution.
type CheckInFieldDelta struct {
	CheckInKind checkin.Kind `json:"check_in_kind"`
	DimensionID uuid.UUID    `json:"dimension_id"`
	Field       string       `json:"field"`

	Rating    *int    `json:"rating,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

func (d CheckInFieldDelta) Kind() DeltaKind { return DeltaCheckInField }
func (d CheckInFieldDelta) Key() FieldKey {
	return FieldKey{DimensionID: d.DimensionID, Field: d.Field}
}

func (d CheckInFieldDelta) Value() any {
	switch {
	case d.Rating != nil:
		return *d.Rating
	case d.Notes != nil:
		return *d.Notes
	case d.Completed != nil:
		return *d.Completed
	default:
		return nil
	}
}

func (d CheckInFieldDelta) Validate() error {
	if !d.CheckInKind.Valid() {
		return fmt.Errorf("check_in_kind %q is invalid", d.CheckInKind)
	}
	if d.DimensionID == uuid.Nil {
		return fmt.Errorf("dimension_id is required")
	}
	switch d.Field {
	case FieldEmployeeRating, FieldManagerRating, FieldOfficialRating, FieldFinalize:
		if d.Rating == nil {
			return fmt.Errorf("field %q requires a rating", d.Field)
		}
		if *d.Rating < 0 || *d.Rating > 5 {
			return fmt.Errorf("rating must be within 0..5, got %d", *d.Rating)
		}
	case FieldEmployeePrivateNotes, FieldManagerPrivateNotes, FieldSharedNotes:
		if d.Notes == nil {
			return fmt.Errorf("field %q requires notes", d.Field)
		}
	case FieldEmployeeCompleted, FieldManagerCompleted:
		if d.Completed == nil {
			return fmt.Errorf("field %q requires a completed flag", d.Field)
		}
	default:
		return fmt.Errorf("field %q is not a check-in field", d.Field)
	}
	return nil
}

// MilestoneDelta creates or updates a milestone/aspiration record. A nil
// MilestoneID means create; the builder assigns the id so execution is
// deterministic.
type MilestoneDelta struct {
	MilestoneID   uuid.UUID      `json:"milestone_id"`
	MilestoneKind milestone.Kind `json:"milestone_kind"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Status        string         `json:"status"`
}

func (d MilestoneDelta) Kind() DeltaKind { return DeltaMilestone }
func (d MilestoneDelta) Key() FieldKey {
	return FieldKey{DimensionID: d.MilestoneID, Field: "milestone"}
}
func (d MilestoneDelta) Value() any {
	return map[string]string{"title": d.Title, "body": d.Body, "status": d.Status}
}
func (d MilestoneDelta) Validate() error {
	if !d.MilestoneKind.Valid() {
		return fmt.Errorf("milestone_kind %q is invalid", d.MilestoneKind)
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

type deltaEnvelope struct {
	Kind  DeltaKind       `json:"kind"`
	Delta json.RawMessage `json:"delta"`
}

// MarshalDeltas encodes deltas with a kind envelope so they round-trip through
// the snapshot row's jsonb column.
func MarshalDeltas(deltas []Delta) (json.RawMessage, error) {
	envelopes := make([]deltaEnvelope, 0, len(deltas))
	for _, d := range deltas {
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, deltaEnvelope{Kind: d.Kind(), Delta: raw})
	}
	return json.Marshal(envelopes)
}

func UnmarshalDeltas(raw json.RawMessage) ([]Delta, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var envelopes []deltaEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, err
	}
	out := make([]Delta, 0, len(envelopes))
	for _, env := range envelopes {
		var (
			d   Delta
			err error
		)
		switch env.Kind {
		case DeltaAssignmentEnergy:
			var v AssignmentEnergyDelta
			err = json.Unmarshal(env.Delta, &v)
			d = v
		case DeltaTenureEnd:
			var v TenureEndDelta
			err = json.Unmarshal(env.Delta, &v)
			d = v
		case DeltaPositionTenure:
			var v PositionTenureDelta
			err = json.Unmarshal(env.Delta, &v)
			d = v
		case DeltaCheckInField:
			var v CheckInFieldDelta
			err = json.Unmarshal(env.Delta, &v)
			d = v
		case DeltaMilestone:
			var v MilestoneDelta
			err = json.Unmarshal(env.Delta, &v)
			d = v
		default:
			return nil, fmt.Errorf("unknown delta kind %q", env.Kind)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
