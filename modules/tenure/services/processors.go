package services

import (
	"fmt"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/domain/milestone"
)

// Each change type constrains which delta kinds a snapshot may carry. The
// processor runs before a draft snapshot's data is resolved and again on the
// single-phase build path.
type deltaPolicy func(d changeset.Delta) error

var changeTypePolicies = map[changeset.ChangeType]deltaPolicy{
	changeset.TypeAssignmentManagement:    assignmentManagementPolicy,
	changeset.TypeBulkCheckInFinalization: bulkCheckInFinalizationPolicy,
	changeset.TypePositionTenure:          positionTenurePolicy,
	changeset.TypeMilestoneManagement:     milestonePolicy(milestone.KindMilestone),
	changeset.TypeAspirationManagement:    aspirationManagementPolicy,
	changeset.TypeExploration:             explorationPolicy,
}

func validateDeltasForType(changeType changeset.ChangeType, deltas []changeset.Delta) error {
	policy, ok := changeTypePolicies[changeType]
	if !ok {
		return fmt.Errorf("change_type %q is invalid", changeType)
	}
	for _, d := range deltas {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := policy(d); err != nil {
			return err
		}
	}
	return nil
}

func assignmentManagementPolicy(d changeset.Delta) error {
	switch v := d.(type) {
	case changeset.AssignmentEnergyDelta:
		return nil
	case changeset.TenureEndDelta:
		if v.TenureKind != interval.KindAssignment {
			return fmt.Errorf("assignment_management may only end assignment tenures, got %q", v.TenureKind)
		}
		return nil
	case changeset.CheckInFieldDelta:
		if v.CheckInKind != checkin.KindAssignment {
			return fmt.Errorf("assignment_management may only touch assignment check-ins, got %q", v.CheckInKind)
		}
		return nil
	default:
		return fmt.Errorf("delta kind %q is not valid for assignment_management", d.Kind())
	}
}

func bulkCheckInFinalizationPolicy(d changeset.Delta) error {
	v, ok := d.(changeset.CheckInFieldDelta)
	if !ok || v.Field != changeset.FieldFinalize {
		return fmt.Errorf("bulk_check_in_finalization only accepts check-in finalize deltas, got %q/%q", d.Kind(), d.Key().Field)
	}
	return nil
}

func positionTenurePolicy(d changeset.Delta) error {
	switch v := d.(type) {
	case changeset.PositionTenureDelta:
		return nil
	case changeset.TenureEndDelta:
		if v.TenureKind != interval.KindPosition && v.TenureKind != interval.KindEmployment {
			return fmt.Errorf("position_tenure may only end position or employment tenures, got %q", v.TenureKind)
		}
		return nil
	default:
		return fmt.Errorf("delta kind %q is not valid for position_tenure", d.Kind())
	}
}

func milestonePolicy(kind milestone.Kind) deltaPolicy {
	return func(d changeset.Delta) error {
		v, ok := d.(changeset.MilestoneDelta)
		if !ok {
			return fmt.Errorf("delta kind %q is not valid for %s management", d.Kind(), kind)
		}
		if v.MilestoneKind != kind {
			return fmt.Errorf("expected %s deltas, got %q", kind, v.MilestoneKind)
		}
		return nil
	}
}

func aspirationManagementPolicy(d changeset.Delta) error {
	switch v := d.(type) {
	case changeset.MilestoneDelta:
		if v.MilestoneKind != milestone.KindAspiration {
			return fmt.Errorf("aspiration_management expects aspiration deltas, got %q", v.MilestoneKind)
		}
		return nil
	case changeset.CheckInFieldDelta:
		if v.CheckInKind != checkin.KindAspiration {
			return fmt.Errorf("aspiration_management may only touch aspiration check-ins, got %q", v.CheckInKind)
		}
		return nil
	default:
		return fmt.Errorf("delta kind %q is not valid for aspiration_management", d.Kind())
	}
}

// exploration bundles are unconstrained what-if proposals.
func explorationPolicy(changeset.Delta) error { return nil }
