package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/domain/milestone"
	"github.com/groveops/grove/pkg/composables"
	"github.com/groveops/grove/pkg/eventbus"
)

// ExecutionService consumes a reviewed snapshot and applies every one of its
// deltas inside one transaction, or none of them. Authorization happened
// out-of-band before the call; the snapshot row is locked for the duration so
// concurrent executions block rather than interleave.
type ExecutionService struct {
	snapshots  changeset.Repository
	tenures    *TenureService
	checkIns   checkin.Repository
	milestones milestone.Repository
	bus        eventbus.EventBus
}

func NewExecutionService(
	snapshots changeset.Repository,
	tenures *TenureService,
	checkIns checkin.Repository,
	milestones milestone.Repository,
	bus eventbus.EventBus,
) *ExecutionService {
	return &ExecutionService{
		snapshots:  snapshots,
		tenures:    tenures,
		checkIns:   checkIns,
		milestones: milestones,
		bus:        bus,
	}
}

type ExecuteInput struct {
	SnapshotID uuid.UUID
	ActorID    uuid.UUID
	// EffectiveDate defaults to today (UTC) when zero.
	EffectiveDate time.Time
}

type ExecuteResult struct {
	Snapshot      changeset.Snapshot
	EffectiveDate time.Time
	// FinalizedCheckIns are the check-ins this execution officially completed.
	FinalizedCheckIns []checkin.CheckIn
}

func (s *ExecutionService) Execute(ctx context.Context, tenantID uuid.UUID, in ExecuteInput) (*ExecuteResult, error) {
	if in.SnapshotID == uuid.Nil {
		return nil, newValidationError("snapshot_id is required", nil)
	}
	if in.ActorID == uuid.Nil {
		return nil, newValidationError("actor_id is required", nil)
	}
	effectiveDate := normalizeValidDateUTC(in.EffectiveDate)
	if effectiveDate.IsZero() {
		effectiveDate = normalizeValidDateUTC(time.Now().UTC())
	}

	result, err := inTx(ctx, tenantID, func(txCtx context.Context) (*ExecuteResult, error) {
		snap, err := s.lockPending(txCtx, in.SnapshotID)
		if err != nil {
			return nil, err
		}
		if snap.Phase() == changeset.PhaseDraft {
			return nil, newStateConflictError("snapshot data has not been resolved yet", nil)
		}

		var finalized []checkin.CheckIn
		for i, d := range snap.Deltas() {
			fin, err := s.applyDelta(txCtx, *snap, d, effectiveDate, in.ActorID)
			if err != nil {
				return nil, describeFailingDelta(err, i, d)
			}
			if fin != nil {
				finalized = append(finalized, *fin)
			}
		}

		executed, err := s.snapshots.MarkExecuted(txCtx, in.SnapshotID, effectiveDate)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &ExecuteResult{Snapshot: executed, EffectiveDate: effectiveDate, FinalizedCheckIns: finalized}, nil
	})
	if err != nil {
		s.reportFailure(ctx, tenantID, in, err)
		return nil, err
	}

	recordExecution("success")
	s.bus.Publish(changeset.ExecutedEvent{
		TenantID:      tenantID,
		SnapshotID:    result.Snapshot.ID(),
		SubjectID:     result.Snapshot.SubjectID(),
		ChangeType:    result.Snapshot.ChangeType(),
		ExecutedByID:  in.ActorID,
		EffectiveDate: result.EffectiveDate,
	})
	for _, c := range result.FinalizedCheckIns {
		s.bus.Publish(checkin.FinalizedEvent{
			TenantID:       c.TenantID(),
			CheckInID:      c.ID(),
			SubjectID:      c.SubjectID(),
			DimensionID:    c.DimensionID(),
			Kind:           c.Kind(),
			OfficialRating: *c.OfficialRating(),
			FinalizedByID:  c.FinalizedByID(),
			FinalizedAt:    *c.OfficialCompletedAt(),
		})
	}
	return result, nil
}

// lockPending acquires the snapshot row for update, distinguishing "already
// executed" from "does not exist".
func (s *ExecutionService) lockPending(ctx context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	snap, err := s.snapshots.LockPendingByID(ctx, id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapPgError(err)
	}
	if snap != nil {
		return snap, nil
	}
	existing, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	if existing != nil {
		return nil, newStateConflictError("snapshot has already been executed", nil)
	}
	return nil, newNotFoundError("snapshot not found", nil)
}

// applyDelta applies one delta; when it officially completes a check-in, that
// check-in is returned so the caller can publish the event after commit.
func (s *ExecutionService) applyDelta(ctx context.Context, snap changeset.Snapshot, d changeset.Delta, effectiveDate time.Time, actorID uuid.UUID) (*checkin.CheckIn, error) {
	switch v := d.(type) {
	case changeset.AssignmentEnergyDelta:
		// A concurrent proposal may have landed the same value first;
		// last-write-wins means a no-op result is fine to skip.
		_, err := s.tenures.Supersede(ctx, SupersedeInput{
			SubjectID:     snap.SubjectID(),
			DimensionID:   v.AssignmentID,
			Kind:          interval.KindAssignment,
			Attributes:    interval.Attributes{AnticipatedEnergyPercentage: v.EnergyPercentage},
			EffectiveDate: effectiveDate,
		})
		return nil, err

	case changeset.TenureEndDelta:
		_, err := s.tenures.EndOpen(ctx, snap.SubjectID(), v.DimensionID, v.TenureKind, v.EndDate)
		return nil, err

	case changeset.PositionTenureDelta:
		open, err := s.tenures.repo.Open(ctx, snap.SubjectID(), v.PositionID, interval.KindPosition)
		if err != nil {
			return nil, mapPgError(err)
		}
		if open != nil {
			return nil, nil
		}
		_, err = s.tenures.Supersede(ctx, SupersedeInput{
			SubjectID:     snap.SubjectID(),
			DimensionID:   v.PositionID,
			Kind:          interval.KindPosition,
			EffectiveDate: effectiveDate,
		})
		return nil, err

	case changeset.CheckInFieldDelta:
		return s.applyCheckInDelta(ctx, snap, v, actorID)

	case changeset.MilestoneDelta:
		tenantID, err := composables.UseTenantID(ctx)
		if err != nil {
			return nil, err
		}
		_, err = s.milestones.Upsert(ctx, milestone.New(
			tenantID, v.MilestoneID, snap.SubjectID(),
			v.MilestoneKind, v.Title, v.Body, v.Status,
		))
		if err != nil {
			return nil, mapPgError(err)
		}
		return nil, nil

	default:
		return nil, newValidationError("unknown delta kind", nil)
	}
}

func (s *ExecutionService) applyCheckInDelta(ctx context.Context, snap changeset.Snapshot, d changeset.CheckInFieldDelta, actorID uuid.UUID) (*checkin.CheckIn, error) {
	c, err := findOrCreateOpenCheckIn(ctx, s.checkIns, snap.SubjectID(), d.DimensionID, d.CheckInKind)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cur := *c
	switch d.Field {
	case changeset.FieldEmployeeRating:
		cur, err = cur.SetRating(checkin.SideEmployee, d.Rating)
	case changeset.FieldEmployeePrivateNotes:
		cur, err = cur.SetPrivateNotes(checkin.SideEmployee, *d.Notes)
	case changeset.FieldEmployeeCompleted:
		cur, err = completeOrUncomplete(cur, checkin.SideEmployee, *d.Completed, now)
	case changeset.FieldManagerRating:
		cur, err = cur.SetRating(checkin.SideManager, d.Rating)
	case changeset.FieldManagerPrivateNotes:
		cur, err = cur.SetPrivateNotes(checkin.SideManager, *d.Notes)
	case changeset.FieldManagerCompleted:
		cur, err = completeOrUncomplete(cur, checkin.SideManager, *d.Completed, now)
	case changeset.FieldOfficialRating:
		cur, err = cur.SaveOfficialRating(*d.Rating)
	case changeset.FieldSharedNotes:
		cur, err = cur.SetSharedNotes(*d.Notes)
	case changeset.FieldFinalize:
		cur, err = cur.Finalize(*d.Rating, actorID, now)
	default:
		return nil, newValidationError("unknown check-in field", nil)
	}
	if err != nil {
		return nil, mapCheckInError(err)
	}

	updated, err := s.checkIns.Update(ctx, cur)
	if err != nil {
		return nil, mapPgError(err)
	}
	if d.Field == changeset.FieldFinalize {
		return &updated, nil
	}
	return nil, nil
}

func completeOrUncomplete(c checkin.CheckIn, side checkin.Side, completed bool, now time.Time) (checkin.CheckIn, error) {
	if completed {
		return c.CompleteSide(side, now)
	}
	return c.UncompleteSide(side)
}

// describeFailingDelta tags the error with which delta broke the execution;
// the whole transaction rolls back either way.
func describeFailingDelta(err error, index int, d changeset.Delta) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Status < 500 {
		return svcErr
	}
	return newExecutionError(
		fmt.Sprintf("change execution failed at delta %d (%s)", index, d.Key().Field),
		err,
	)
}

// reportFailure logs every failed execution with enough context to diagnose
// it. Rejections are expected outcomes; execution failures are the class that
// should page.
func (s *ExecutionService) reportFailure(ctx context.Context, tenantID uuid.UUID, in ExecuteInput, err error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"snapshot_id": in.SnapshotID,
		"actor_id":    in.ActorID,
	})
	if IsRejection(err) {
		recordExecution("rejected")
		logger.WithError(err).Info("snapshot execution rejected")
		return
	}
	recordExecution("failed")
	logger.WithError(err).Error("snapshot execution failed, transaction rolled back")
}
