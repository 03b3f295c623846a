package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/pkg/composables"
)

type snapshotFixture struct {
	svc        *SnapshotService
	snapshots  *memSnapshotRepo
	intervals  *memIntervalRepo
	checkIns   *memCheckInRepo
	milestones *memMilestoneRepo

	tenantID     uuid.UUID
	subjectID    uuid.UUID
	creatorID    uuid.UUID
	assignmentID uuid.UUID
}

func newSnapshotFixture() *snapshotFixture {
	f := &snapshotFixture{
		snapshots:    newMemSnapshotRepo(),
		intervals:    newMemIntervalRepo(),
		checkIns:     newMemCheckInRepo(),
		milestones:   newMemMilestoneRepo(),
		tenantID:     uuid.New(),
		subjectID:    uuid.New(),
		creatorID:    uuid.New(),
		assignmentID: uuid.New(),
	}
	f.svc = NewSnapshotService(
		f.snapshots, f.intervals, f.checkIns, f.milestones,
		NewPendingChangeResolver(f.snapshots),
	)
	return f
}

func (f *snapshotFixture) seedAssignmentEnergy(energy int) {
	f.intervals.seed(interval.New(
		f.tenantID, f.subjectID, f.assignmentID, interval.KindAssignment,
		date(2025, time.March, 1), interval.Attributes{AnticipatedEnergyPercentage: energy},
	))
}

func (f *snapshotFixture) energyInput(energy int, reason string) BuildInput {
	return BuildInput{
		SubjectID:   f.subjectID,
		CreatedByID: f.creatorID,
		ChangeType:  changeset.TypeAssignmentManagement,
		Reason:      reason,
		Deltas: []changeset.Delta{
			changeset.AssignmentEnergyDelta{AssignmentID: f.assignmentID, EnergyPercentage: energy},
		},
	}
}

func TestSnapshotService_BuildWithChanges(t *testing.T) {
	ctx, _ := testContext()

	t.Run("MaterializesComparisonData", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, "Q3 rebalance"))
		require.NoError(t, err)
		require.Equal(t, changeset.PhaseDataResolved, snap.Phase())
		require.True(t, snap.Pending())
		require.Len(t, snap.Deltas(), 1)

		data := snap.Data()
		require.NotNil(t, data)
		require.Len(t, data.Fields, 1)
		require.Equal(t, 30, data.Fields[0].CurrentValue)
		require.Equal(t, 50, data.Fields[0].ProposedValue)
	})

	t.Run("DropsNoOpDeltas", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)
		otherAssignment := uuid.New()
		f.intervals.seed(interval.New(
			f.tenantID, f.subjectID, otherAssignment, interval.KindAssignment,
			date(2025, time.March, 1), interval.Attributes{AnticipatedEnergyPercentage: 40},
		))

		in := f.energyInput(30, "")
		in.Deltas = append(in.Deltas, changeset.AssignmentEnergyDelta{AssignmentID: otherAssignment, EnergyPercentage: 60})

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, in)
		require.NoError(t, err)
		require.Len(t, snap.Deltas(), 1)
		require.Equal(t, otherAssignment, snap.Deltas()[0].Key().DimensionID)
	})

	t.Run("AllNoOpsIsARejection", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		_, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(30, ""))
		requireServiceError(t, err, "TENURE_INVALID_BODY")
	})

	t.Run("ResolvesAgainstEarlierPendingSnapshots", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		_, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, "first proposal"))
		require.NoError(t, err)

		// Effective current is now 50, so a second proposal of 50 has
		// nothing to change even though the database still says 30.
		_, err = f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, "same proposal"))
		requireServiceError(t, err, "TENURE_INVALID_BODY")

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(70, "second proposal"))
		require.NoError(t, err)
		require.Equal(t, 50, snap.Data().Fields[0].CurrentValue)
	})

	t.Run("EnforcesChangeTypePolicy", func(t *testing.T) {
		f := newSnapshotFixture()
		in := f.energyInput(50, "")
		in.ChangeType = changeset.TypeBulkCheckInFinalization

		_, err := f.svc.BuildWithChanges(ctx, f.tenantID, in)
		requireServiceError(t, err, "TENURE_INVALID_BODY")
	})

	t.Run("CapturesProvenance", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)
		reqCtx := composables.WithParams(ctx, &composables.Params{
			IP: "203.0.113.7", UserAgent: "grove-web", RequestID: "req-42",
		})

		snap, err := f.svc.BuildWithChanges(reqCtx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)
		require.Equal(t, "203.0.113.7", snap.RequestProvenance().IP)
		require.Equal(t, "req-42", snap.RequestProvenance().RequestID)
		require.False(t, snap.RequestProvenance().At.IsZero())
	})
}

func TestSnapshotService_TwoPhaseBuild(t *testing.T) {
	ctx, _ := testContext()

	t.Run("DraftThenResolve", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		draft, err := f.svc.BuildDraft(ctx, f.tenantID, f.energyInput(50, "bulk pass"))
		require.NoError(t, err)
		require.Equal(t, changeset.PhaseDraft, draft.Phase())
		require.Nil(t, draft.Data())

		resolved, err := f.svc.ResolveData(ctx, f.tenantID, draft.ID())
		require.NoError(t, err)
		require.Equal(t, changeset.PhaseDataResolved, resolved.Phase())
		require.NotNil(t, resolved.Data())
		require.Equal(t, 30, resolved.Data().Fields[0].CurrentValue)
	})

	t.Run("ResolutionIgnoresTheDraftsOwnDeltas", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		draft, err := f.svc.BuildDraft(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)

		// The draft is already pending; its own staged value must not make
		// its deltas look like no-ops.
		resolved, err := f.svc.ResolveData(ctx, f.tenantID, draft.ID())
		require.NoError(t, err)
		require.Len(t, resolved.Deltas(), 1)
		require.Equal(t, 30, resolved.Data().Fields[0].CurrentValue)
		require.Equal(t, 50, resolved.Data().Fields[0].ProposedValue)
	})

	t.Run("ResolutionStillHonorsOtherPendingSnapshots", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		_, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, "earlier"))
		require.NoError(t, err)

		dup, err := f.svc.BuildDraft(ctx, f.tenantID, f.energyInput(50, "duplicate"))
		require.NoError(t, err)
		_, err = f.svc.ResolveData(ctx, f.tenantID, dup.ID())
		requireServiceError(t, err, "TENURE_INVALID_BODY")

		further, err := f.svc.BuildDraft(ctx, f.tenantID, f.energyInput(70, "further"))
		require.NoError(t, err)
		resolved, err := f.svc.ResolveData(ctx, f.tenantID, further.ID())
		require.NoError(t, err)
		require.Equal(t, 50, resolved.Data().Fields[0].CurrentValue)
	})

	t.Run("ResolveTwiceIsAStateConflict", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		draft, err := f.svc.BuildDraft(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)
		_, err = f.svc.ResolveData(ctx, f.tenantID, draft.ID())
		require.NoError(t, err)

		_, err = f.svc.ResolveData(ctx, f.tenantID, draft.ID())
		requireServiceError(t, err, "TENURE_STATE_CONFLICT")
	})

	t.Run("ResolveUnknownSnapshotIsNotFound", func(t *testing.T) {
		f := newSnapshotFixture()
		_, err := f.svc.ResolveData(ctx, f.tenantID, uuid.New())
		requireServiceError(t, err, "TENURE_NOT_FOUND")
	})
}

func TestSnapshotService_Diff(t *testing.T) {
	ctx, _ := testContext()

	t.Run("ReadsLiveValues", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)

		diffs, err := f.svc.Diff(ctx, f.tenantID, snap.ID())
		require.NoError(t, err)
		require.Len(t, diffs, 1)
		require.Equal(t, 30, diffs[0].CurrentValue)
		require.Equal(t, 50, diffs[0].ProposedValue)
		require.False(t, diffs[0].Stale)
	})

	t.Run("FlagsStaleProposals", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)

		// Someone else changes the persisted value after the proposal
		// was staged.
		tenures := NewTenureService(f.intervals)
		tenantCtx := composables.WithTenantID(ctx, f.tenantID)
		_, err = tenures.Supersede(tenantCtx, SupersedeInput{
			SubjectID:     f.subjectID,
			DimensionID:   f.assignmentID,
			Kind:          interval.KindAssignment,
			Attributes:    interval.Attributes{AnticipatedEnergyPercentage: 45},
			EffectiveDate: date(2026, time.February, 1),
		})
		require.NoError(t, err)

		diffs, err := f.svc.Diff(ctx, f.tenantID, snap.ID())
		require.NoError(t, err)
		require.Equal(t, 45, diffs[0].CurrentValue)
		require.True(t, diffs[0].Stale)
	})
}

func TestSnapshotService_Discard(t *testing.T) {
	ctx, _ := testContext()

	t.Run("DeletesAPendingSnapshot", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)
		require.NoError(t, f.svc.Discard(ctx, f.tenantID, snap.ID()))

		_, err = f.svc.Get(ctx, f.tenantID, snap.ID())
		requireServiceError(t, err, "TENURE_NOT_FOUND")
	})

	t.Run("ExecutedSnapshotsCannotBeDiscarded", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)

		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)
		_, err = f.snapshots.MarkExecuted(ctx, snap.ID(), date(2026, time.June, 1))
		require.NoError(t, err)

		err = f.svc.Discard(ctx, f.tenantID, snap.ID())
		requireServiceError(t, err, "TENURE_STATE_CONFLICT")
	})
}

func TestSnapshotService_Acknowledge(t *testing.T) {
	ctx, _ := testContext()

	setup := func(t *testing.T) (*snapshotFixture, changeset.Snapshot) {
		t.Helper()
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)
		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)
		executed, err := f.snapshots.MarkExecuted(ctx, snap.ID(), date(2026, time.June, 1))
		require.NoError(t, err)
		return f, executed
	}

	t.Run("SubjectAcknowledgesAnExecutedChange", func(t *testing.T) {
		f, executed := setup(t)
		acked, err := f.svc.Acknowledge(ctx, f.tenantID, executed.ID(), f.subjectID)
		require.NoError(t, err)
		require.NotNil(t, acked.EmployeeAcknowledgedAt())
	})

	t.Run("OnlyTheSubjectMayAcknowledge", func(t *testing.T) {
		f, executed := setup(t)
		_, err := f.svc.Acknowledge(ctx, f.tenantID, executed.ID(), uuid.New())
		requireServiceError(t, err, "TENURE_INVALID_BODY")
	})

	t.Run("PendingSnapshotsCannotBeAcknowledged", func(t *testing.T) {
		f := newSnapshotFixture()
		f.seedAssignmentEnergy(30)
		snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, ""))
		require.NoError(t, err)

		_, err = f.svc.Acknowledge(ctx, f.tenantID, snap.ID(), f.subjectID)
		requireServiceError(t, err, "TENURE_STATE_CONFLICT")
	})
}

func TestSnapshotService_ListPending(t *testing.T) {
	ctx, _ := testContext()

	f := newSnapshotFixture()
	f.seedAssignmentEnergy(30)

	first, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(50, "first"))
	require.NoError(t, err)
	second, err := f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(70, "second"))
	require.NoError(t, err)

	pending, err := f.svc.ListPending(ctx, f.tenantID, f.subjectID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID(), pending[0].ID())
	require.Equal(t, second.ID(), pending[1].ID())
}

func TestSnapshotService_EffectiveAssignmentEnergy(t *testing.T) {
	ctx, _ := testContext()

	f := newSnapshotFixture()
	f.seedAssignmentEnergy(30)

	field, err := f.svc.EffectiveAssignmentEnergy(ctx, f.tenantID, f.subjectID, f.assignmentID)
	require.NoError(t, err)
	require.Equal(t, 30, field.PersistedValue)
	require.Equal(t, 30, field.EffectiveValue)

	_, err = f.svc.BuildWithChanges(ctx, f.tenantID, f.energyInput(55, "pending"))
	require.NoError(t, err)

	field, err = f.svc.EffectiveAssignmentEnergy(ctx, f.tenantID, f.subjectID, f.assignmentID)
	require.NoError(t, err)
	require.Equal(t, 30, field.PersistedValue)
	require.Equal(t, 55, field.EffectiveValue)
}

func TestSnapshotService_MilestoneDeltasGetIdentityAtBuild(t *testing.T) {
	ctx, _ := testContext()
	f := newSnapshotFixture()

	snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, BuildInput{
		SubjectID:   f.subjectID,
		CreatedByID: f.creatorID,
		ChangeType:  changeset.TypeMilestoneManagement,
		Deltas: []changeset.Delta{
			changeset.MilestoneDelta{
				MilestoneKind: "milestone",
				Title:         "Ship the billing migration",
			},
		},
	})
	require.NoError(t, err)

	m, ok := snap.Deltas()[0].(changeset.MilestoneDelta)
	require.True(t, ok)
	require.NotEqual(t, uuid.Nil, m.MilestoneID)
}

func TestSnapshotService_CheckInFieldCurrentValues(t *testing.T) {
	ctx, _ := testContext()
	f := newSnapshotFixture()

	open, err := f.checkIns.Insert(ctx, checkin.New(f.tenantID, f.subjectID, f.assignmentID, checkin.KindAssignment))
	require.NoError(t, err)
	withRating, err := open.SetRating(checkin.SideEmployee, intPtr(3))
	require.NoError(t, err)
	_, err = f.checkIns.Update(ctx, withRating)
	require.NoError(t, err)

	snap, err := f.svc.BuildWithChanges(ctx, f.tenantID, BuildInput{
		SubjectID:   f.subjectID,
		CreatedByID: f.creatorID,
		ChangeType:  changeset.TypeAssignmentManagement,
		Deltas: []changeset.Delta{
			changeset.CheckInFieldDelta{
				CheckInKind: checkin.KindAssignment,
				DimensionID: f.assignmentID,
				Field:       changeset.FieldEmployeeRating,
				Rating:      intPtr(4),
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 3, snap.Data().Fields[0].CurrentValue)
	require.Equal(t, 4, snap.Data().Fields[0].ProposedValue)
}
