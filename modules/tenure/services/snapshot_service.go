package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/domain/milestone"
	"github.com/groveops/grove/pkg/composables"
)

// SnapshotService builds, resolves, and manages change snapshots. It never
// applies changes; execution is ExecutionService's job.
type SnapshotService struct {
	snapshots  changeset.Repository
	intervals  interval.Repository
	checkIns   checkin.Repository
	milestones milestone.Repository
	resolver   *PendingChangeResolver
}

func NewSnapshotService(
	snapshots changeset.Repository,
	intervals interval.Repository,
	checkIns checkin.Repository,
	milestones milestone.Repository,
	resolver *PendingChangeResolver,
) *SnapshotService {
	return &SnapshotService{
		snapshots:  snapshots,
		intervals:  intervals,
		checkIns:   checkIns,
		milestones: milestones,
		resolver:   resolver,
	}
}

type BuildInput struct {
	SubjectID   uuid.UUID
	CreatedByID uuid.UUID
	ChangeType  changeset.ChangeType
	Reason      string
	Deltas      []changeset.Delta
}

func (in BuildInput) validate() error {
	if in.SubjectID == uuid.Nil {
		return newValidationError("subject_id is required", nil)
	}
	if in.CreatedByID == uuid.Nil {
		return newValidationError("created_by_id is required", nil)
	}
	if !in.ChangeType.Valid() {
		return newValidationError("change_type is invalid", nil)
	}
	if len(in.Deltas) == 0 {
		return newValidationError("at least one delta is required", nil)
	}
	return nil
}

// captureProvenance records who/where the proposal came from, for audit,
// regardless of build mode.
func captureProvenance(ctx context.Context) changeset.Provenance {
	p := changeset.Provenance{At: time.Now().UTC()}
	p.IP, _ = composables.UseIP(ctx)
	p.UserAgent, _ = composables.UseUserAgent(ctx)
	p.RequestID, _ = composables.UseRequestID(ctx)
	return p
}

// BuildWithChanges is the single-phase build: every proposed delta is resolved
// against effective-current state at creation time, no-ops are dropped, and
// the materialized comparison data is persisted with the snapshot.
func (s *SnapshotService) BuildWithChanges(ctx context.Context, tenantID uuid.UUID, in BuildInput) (*changeset.Snapshot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := validateDeltasForType(in.ChangeType, in.Deltas); err != nil {
		return nil, newValidationError(err.Error(), err)
	}

	snap, err := inTx(ctx, tenantID, func(txCtx context.Context) (*changeset.Snapshot, error) {
		kept, data, err := s.resolveDeltas(txCtx, in.SubjectID, in.Deltas, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if len(kept) == 0 {
			return nil, newValidationError("no proposed value differs from effective current", nil)
		}
		created, err := s.snapshots.Insert(txCtx, changeset.New(
			tenantID, in.SubjectID, in.CreatedByID,
			in.ChangeType, in.Reason, captureProvenance(ctx),
			kept, &data,
		))
		if err != nil {
			return nil, mapPgError(err)
		}
		return &created, nil
	})
	if err != nil {
		return nil, err
	}
	recordSnapshotBuild("single_phase")
	return snap, nil
}

// BuildDraft is the fast path for bulk operations: the snapshot is persisted
// with raw deltas only, and ResolveData fills the comparison state in a second
// pass before review.
func (s *SnapshotService) BuildDraft(ctx context.Context, tenantID uuid.UUID, in BuildInput) (*changeset.Snapshot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := validateDeltasForType(in.ChangeType, in.Deltas); err != nil {
		return nil, newValidationError(err.Error(), err)
	}

	snap, err := inTx(ctx, tenantID, func(txCtx context.Context) (*changeset.Snapshot, error) {
		created, err := s.snapshots.Insert(txCtx, changeset.New(
			tenantID, in.SubjectID, in.CreatedByID,
			in.ChangeType, in.Reason, captureProvenance(ctx),
			assignMilestoneIDs(in.Deltas), nil,
		))
		if err != nil {
			return nil, mapPgError(err)
		}
		return &created, nil
	})
	if err != nil {
		return nil, err
	}
	recordSnapshotBuild("draft")
	return snap, nil
}

// ResolveData runs the second phase of a two-phase build: drop no-op deltas,
// materialize comparison data, and advance the snapshot to data_resolved.
func (s *SnapshotService) ResolveData(ctx context.Context, tenantID, snapshotID uuid.UUID) (*changeset.Snapshot, error) {
	return inTx(ctx, tenantID, func(txCtx context.Context) (*changeset.Snapshot, error) {
		snap, err := s.mustGetPending(txCtx, snapshotID)
		if err != nil {
			return nil, err
		}
		if snap.Phase() != changeset.PhaseDraft {
			return nil, newStateConflictError("snapshot data is already resolved", nil)
		}
		kept, data, err := s.resolveDeltas(txCtx, snap.SubjectID(), snap.Deltas(), snap.ID())
		if err != nil {
			return nil, err
		}
		if len(kept) == 0 {
			return nil, newValidationError("no proposed value differs from effective current", nil)
		}
		updated, err := s.snapshots.UpdateResolved(txCtx, snapshotID, kept, data, changeset.PhaseDataResolved)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &updated, nil
	})
}

// FieldDiff is one row of the review diff. Current values are read from live
// persisted state at render time, so a proposal gone stale since build is
// visibly flagged.
type FieldDiff struct {
	Key           changeset.FieldKey  `json:"key"`
	DeltaKind     changeset.DeltaKind `json:"delta_kind"`
	CurrentValue  any                 `json:"current_value"`
	ProposedValue any                 `json:"proposed_value"`
	Stale         bool                `json:"stale"`
}

func (s *SnapshotService) Diff(ctx context.Context, tenantID, snapshotID uuid.UUID) ([]FieldDiff, error) {
	return inTx(ctx, tenantID, func(txCtx context.Context) ([]FieldDiff, error) {
		snap, err := s.mustGet(txCtx, snapshotID)
		if err != nil {
			return nil, err
		}
		capturedAt := make(map[changeset.FieldKey]any)
		if data := snap.Data(); data != nil {
			for _, f := range data.Fields {
				capturedAt[f.Key] = f.CurrentValue
			}
		}
		out := make([]FieldDiff, 0, len(snap.Deltas()))
		for _, d := range snap.Deltas() {
			live, err := s.currentPersistedValue(txCtx, snap.SubjectID(), d)
			if err != nil {
				return nil, err
			}
			diff := FieldDiff{
				Key:           d.Key(),
				DeltaKind:     d.Kind(),
				CurrentValue:  live,
				ProposedValue: d.Value(),
			}
			if captured, ok := capturedAt[d.Key()]; ok {
				diff.Stale = !valuesEqual(captured, live)
			}
			out = append(out, diff)
		}
		return out, nil
	})
}

// Discard deletes a pending snapshot. Nothing was applied, so there are no
// side effects; executed snapshots are permanent history and cannot be
// discarded.
func (s *SnapshotService) Discard(ctx context.Context, tenantID, snapshotID uuid.UUID) error {
	_, err := inTx(ctx, tenantID, func(txCtx context.Context) (struct{}, error) {
		snap, err := s.mustGet(txCtx, snapshotID)
		if err != nil {
			return struct{}{}, err
		}
		if !snap.Pending() {
			return struct{}{}, newStateConflictError("an executed snapshot cannot be discarded", nil)
		}
		if err := s.snapshots.DeletePending(txCtx, snapshotID); err != nil {
			return struct{}{}, mapPgError(err)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *SnapshotService) Acknowledge(ctx context.Context, tenantID, snapshotID, actorID uuid.UUID) (*changeset.Snapshot, error) {
	return inTx(ctx, tenantID, func(txCtx context.Context) (*changeset.Snapshot, error) {
		snap, err := s.mustGet(txCtx, snapshotID)
		if err != nil {
			return nil, err
		}
		if snap.Pending() {
			return nil, newStateConflictError("a pending snapshot cannot be acknowledged", nil)
		}
		if actorID != snap.SubjectID() {
			return nil, newValidationError("only the subject can acknowledge a change", nil)
		}
		updated, err := s.snapshots.Acknowledge(txCtx, snapshotID, time.Now().UTC())
		if err != nil {
			return nil, mapPgError(err)
		}
		return &updated, nil
	})
}

func (s *SnapshotService) Get(ctx context.Context, tenantID, snapshotID uuid.UUID) (*changeset.Snapshot, error) {
	snap, err := s.snapshots.GetByID(composables.WithTenantID(ctx, tenantID), snapshotID)
	if err != nil {
		return nil, mapPgError(err)
	}
	if snap == nil {
		return nil, newNotFoundError("snapshot not found", nil)
	}
	return snap, nil
}

func (s *SnapshotService) ListPending(ctx context.Context, tenantID, subjectID uuid.UUID) ([]changeset.Snapshot, error) {
	out, err := s.snapshots.ListPendingBySubject(composables.WithTenantID(ctx, tenantID), subjectID)
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

// EffectiveField is what a proposal form should prefill with: the persisted
// value and the value after folding in pending snapshots.
type EffectiveField struct {
	Key            changeset.FieldKey `json:"key"`
	PersistedValue any                `json:"persisted_value"`
	EffectiveValue any                `json:"effective_value"`
}

// EffectiveAssignmentEnergy resolves the assignment's energy percentage
// through the pending-change resolver without applying anything.
func (s *SnapshotService) EffectiveAssignmentEnergy(ctx context.Context, tenantID, subjectID, assignmentID uuid.UUID) (*EffectiveField, error) {
	if assignmentID == uuid.Nil {
		return nil, newValidationError("assignment_id is required", nil)
	}
	scoped := composables.WithTenantID(ctx, tenantID)
	probe := changeset.AssignmentEnergyDelta{AssignmentID: assignmentID}
	persisted, err := s.currentPersistedValue(scoped, subjectID, probe)
	if err != nil {
		return nil, err
	}
	effective, err := s.resolver.EffectiveValue(scoped, subjectID, probe.Key(), persisted)
	if err != nil {
		return nil, err
	}
	return &EffectiveField{Key: probe.Key(), PersistedValue: persisted, EffectiveValue: effective}, nil
}

// resolveDeltas drops deltas whose proposed value equals the effective-current
// value (persisted state plus other pending snapshots) and materializes the
// comparison data for the rest. excludeID is the snapshot the deltas belong to
// when it is already persisted, so a draft does not resolve against itself.
func (s *SnapshotService) resolveDeltas(ctx context.Context, subjectID uuid.UUID, deltas []changeset.Delta, excludeID uuid.UUID) ([]changeset.Delta, changeset.Data, error) {
	deltas = assignMilestoneIDs(deltas)

	kept := make([]changeset.Delta, 0, len(deltas))
	fields := make([]changeset.FieldComparison, 0, len(deltas))
	for _, d := range deltas {
		current, err := s.currentPersistedValue(ctx, subjectID, d)
		if err != nil {
			return nil, changeset.Data{}, err
		}
		effective, err := s.resolver.EffectiveValueExcluding(ctx, subjectID, d.Key(), current, excludeID)
		if err != nil {
			return nil, changeset.Data{}, err
		}
		if valuesEqual(effective, d.Value()) {
			continue
		}
		kept = append(kept, d)
		fields = append(fields, changeset.FieldComparison{
			Key:           d.Key(),
			DeltaKind:     d.Kind(),
			CurrentValue:  effective,
			ProposedValue: d.Value(),
		})
	}
	return kept, changeset.Data{CapturedAt: time.Now().UTC(), Fields: fields}, nil
}

// currentPersistedValue reads the field's value from live storage, ignoring
// pending snapshots.
func (s *SnapshotService) currentPersistedValue(ctx context.Context, subjectID uuid.UUID, d changeset.Delta) (any, error) {
	switch v := d.(type) {
	case changeset.AssignmentEnergyDelta:
		open, err := s.intervals.Open(ctx, subjectID, v.AssignmentID, interval.KindAssignment)
		if err != nil {
			return nil, mapPgError(err)
		}
		if open == nil {
			return nil, nil
		}
		return open.AnticipatedEnergyPercentage(), nil

	case changeset.TenureEndDelta:
		open, err := s.intervals.Open(ctx, subjectID, v.DimensionID, v.TenureKind)
		if err != nil {
			return nil, mapPgError(err)
		}
		if open == nil {
			// Nothing open: the tenure is already ended, so the
			// proposed end date is a no-op.
			return v.Value(), nil
		}
		return nil, nil

	case changeset.PositionTenureDelta:
		open, err := s.intervals.Open(ctx, subjectID, v.PositionID, interval.KindPosition)
		if err != nil {
			return nil, mapPgError(err)
		}
		return open != nil, nil

	case changeset.CheckInFieldDelta:
		open, err := s.checkIns.FindOpen(ctx, subjectID, v.DimensionID, v.CheckInKind)
		if err != nil {
			return nil, mapPgError(err)
		}
		if open == nil {
			return nil, nil
		}
		return checkInFieldValue(*open, v.Field), nil

	case changeset.MilestoneDelta:
		if v.MilestoneID == uuid.Nil {
			return nil, nil
		}
		existing, err := s.milestones.GetByID(ctx, v.MilestoneID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if existing == nil {
			return nil, nil
		}
		return map[string]string{
			"title":  existing.Title(),
			"body":   existing.Body(),
			"status": existing.Status(),
		}, nil

	default:
		return nil, newValidationError("unknown delta kind", nil)
	}
}

func checkInFieldValue(c checkin.CheckIn, field string) any {
	switch field {
	case changeset.FieldEmployeeRating:
		return intOrNil(c.EmployeeRating())
	case changeset.FieldEmployeePrivateNotes:
		return c.EmployeePrivateNotes()
	case changeset.FieldEmployeeCompleted:
		return c.EmployeeCompletedAt() != nil
	case changeset.FieldManagerRating:
		return intOrNil(c.ManagerRating())
	case changeset.FieldManagerPrivateNotes:
		return c.ManagerPrivateNotes()
	case changeset.FieldManagerCompleted:
		return c.ManagerCompletedAt() != nil
	case changeset.FieldOfficialRating:
		return intOrNil(c.OfficialRating())
	case changeset.FieldSharedNotes:
		return c.SharedNotes()
	case changeset.FieldFinalize:
		// An open check-in is by definition not finalized.
		return false
	default:
		return nil
	}
}

func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// assignMilestoneIDs gives create-mode milestone deltas their identity at
// build time so execution is deterministic and repeatable.
func assignMilestoneIDs(deltas []changeset.Delta) []changeset.Delta {
	out := make([]changeset.Delta, len(deltas))
	for i, d := range deltas {
		if m, ok := d.(changeset.MilestoneDelta); ok && m.MilestoneID == uuid.Nil {
			m.MilestoneID = uuid.New()
			out[i] = m
			continue
		}
		out[i] = d
	}
	return out
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	// Values come either straight from deltas or back from jsonb, where
	// numbers decode as float64; normalize before comparing.
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	if am, ok := a.(map[string]string); ok {
		bm, bok := b.(map[string]string)
		if !bok || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if bm[k] != v {
				return false
			}
		}
		return true
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func (s *SnapshotService) mustGet(ctx context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	snap, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	if snap == nil {
		return nil, newNotFoundError("snapshot not found", nil)
	}
	return snap, nil
}

func (s *SnapshotService) mustGetPending(ctx context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	snap, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if !snap.Pending() {
		return nil, newStateConflictError("snapshot has already been executed", nil)
	}
	return snap, nil
}
