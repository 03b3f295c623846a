package controllers

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
)

func parseUUIDField(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.New("uuid must not be nil")
	}
	return id, nil
}

func dateString(t time.Time) string { return t.UTC().Format("2006-01-02") }

func dateStringPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dateString(*t)
	return &s
}

func snapshotToJSON(s changeset.Snapshot) map[string]any {
	deltas, _ := changeset.MarshalDeltas(s.Deltas())
	out := map[string]any{
		"id":            s.ID(),
		"subject_id":    s.SubjectID(),
		"created_by_id": s.CreatedByID(),
		"change_type":   s.ChangeType(),
		"reason":        s.Reason(),
		"phase":         s.Phase(),
		"pending":       s.Pending(),
		"deltas":        deltas,
		"created_at":    s.CreatedAt(),
	}
	if s.Data() != nil {
		out["data"] = s.Data()
	}
	if ed := s.EffectiveDate(); ed != nil {
		out["effective_date"] = dateString(*ed)
	}
	if ack := s.EmployeeAcknowledgedAt(); ack != nil {
		out["employee_acknowledged_at"] = ack
	}
	return out
}

func tenureToJSON(t interval.Tenure) map[string]any {
	out := map[string]any{
		"id":                            t.ID(),
		"subject_id":                    t.SubjectID(),
		"dimension_id":                  t.DimensionID(),
		"kind":                          t.Kind(),
		"started_at":                    dateString(t.StartedAt()),
		"ended_at":                      dateStringPtr(t.EndedAt()),
		"open":                          t.IsOpen(),
		"anticipated_energy_percentage": t.AnticipatedEnergyPercentage(),
	}
	if r := t.OfficialRating(); r != nil {
		out["official_rating"] = *r
	}
	return out
}

func checkInToJSON(c checkin.CheckIn) map[string]any {
	out := map[string]any{
		"id":                       c.ID(),
		"subject_id":               c.SubjectID(),
		"dimension_id":             c.DimensionID(),
		"kind":                     c.Kind(),
		"state":                    c.State(),
		"employee_rating":          c.EmployeeRating(),
		"employee_private_notes":   c.EmployeePrivateNotes(),
		"employee_completed_at":    c.EmployeeCompletedAt(),
		"manager_rating":           c.ManagerRating(),
		"manager_private_notes":    c.ManagerPrivateNotes(),
		"manager_completed_at":     c.ManagerCompletedAt(),
		"official_rating":          c.OfficialRating(),
		"shared_notes":             c.SharedNotes(),
		"official_completed_at":    c.OfficialCompletedAt(),
		"employee_acknowledged_at": c.EmployeeAcknowledgedAt(),
		"ready_for_finalization":   c.ReadyForFinalization(),
	}
	if c.FinalizedByID() != uuid.Nil {
		out["finalized_by_id"] = c.FinalizedByID()
	}
	return out
}
