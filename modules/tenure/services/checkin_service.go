package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/pkg/composables"
	"github.com/groveops/grove/pkg/eventbus"
)

// CheckInService owns the two-sided check-in state machine. Self-service
// actions (a subject or manager answering their own side) come through here;
// check-in mutations staged in a change snapshot go through ExecutionService
// instead.
type CheckInService struct {
	repo checkin.Repository
	bus  eventbus.EventBus
}

func NewCheckInService(repo checkin.Repository, bus eventbus.EventBus) *CheckInService {
	return &CheckInService{repo: repo, bus: bus}
}

// FindOrCreateOpen returns the open check-in for the key, creating an empty
// one lazily when either side begins answering.
func (s *CheckInService) FindOrCreateOpen(ctx context.Context, tenantID, subjectID, dimensionID uuid.UUID, kind checkin.Kind) (*checkin.CheckIn, error) {
	if !kind.Valid() {
		return nil, newValidationError("check-in kind is invalid", nil)
	}
	if subjectID == uuid.Nil || dimensionID == uuid.Nil {
		return nil, newValidationError("subject_id/dimension_id are required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*checkin.CheckIn, error) {
		return findOrCreateOpenCheckIn(txCtx, s.repo, subjectID, dimensionID, kind)
	})
}

// findOrCreateOpenCheckIn is the transaction-scoped variant shared with the
// execution service.
func findOrCreateOpenCheckIn(ctx context.Context, repo checkin.Repository, subjectID, dimensionID uuid.UUID, kind checkin.Kind) (*checkin.CheckIn, error) {
	existing, err := repo.FindOpen(ctx, subjectID, dimensionID, kind)
	if err != nil {
		return nil, mapPgError(err)
	}
	if existing != nil {
		return existing, nil
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	created, err := repo.Insert(ctx, checkin.New(tenantID, subjectID, dimensionID, kind))
	if err != nil {
		return nil, mapPgError(err)
	}
	return &created, nil
}

type SaveAnswerInput struct {
	CheckInID    uuid.UUID
	Side         checkin.Side
	Rating       *int
	PrivateNotes *string
	SharedNotes  *string
}

// SaveAnswer records one side's in-progress answers without completing it.
func (s *CheckInService) SaveAnswer(ctx context.Context, tenantID uuid.UUID, in SaveAnswerInput) (*checkin.CheckIn, error) {
	if in.CheckInID == uuid.Nil {
		return nil, newValidationError("check_in_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*checkin.CheckIn, error) {
		c, err := s.mustGet(txCtx, in.CheckInID)
		if err != nil {
			return nil, err
		}
		cur := *c
		if in.Rating != nil {
			if cur, err = cur.SetRating(in.Side, in.Rating); err != nil {
				return nil, mapCheckInError(err)
			}
		}
		if in.PrivateNotes != nil {
			if cur, err = cur.SetPrivateNotes(in.Side, *in.PrivateNotes); err != nil {
				return nil, mapCheckInError(err)
			}
		}
		if in.SharedNotes != nil {
			if cur, err = cur.SetSharedNotes(*in.SharedNotes); err != nil {
				return nil, mapCheckInError(err)
			}
		}
		updated, err := s.repo.Update(txCtx, cur)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &updated, nil
	})
}

// CompleteSide marks one side complete. Re-invoking for an already completed
// side is a no-op.
func (s *CheckInService) CompleteSide(ctx context.Context, tenantID, checkInID uuid.UUID, side checkin.Side) (*checkin.CheckIn, error) {
	return s.transition(ctx, tenantID, checkInID, func(c checkin.CheckIn) (checkin.CheckIn, error) {
		return c.CompleteSide(side, time.Now().UTC())
	})
}

func (s *CheckInService) UncompleteSide(ctx context.Context, tenantID, checkInID uuid.UUID, side checkin.Side) (*checkin.CheckIn, error) {
	return s.transition(ctx, tenantID, checkInID, func(c checkin.CheckIn) (checkin.CheckIn, error) {
		return c.UncompleteSide(side)
	})
}

// SaveOfficialRating records the official rating while keeping the check-in
// open for further edits.
func (s *CheckInService) SaveOfficialRating(ctx context.Context, tenantID, checkInID uuid.UUID, rating int) (*checkin.CheckIn, error) {
	return s.transition(ctx, tenantID, checkInID, func(c checkin.CheckIn) (checkin.CheckIn, error) {
		return c.SaveOfficialRating(rating)
	})
}

// Finalize officially completes the check-in. A check-in that is not ready is
// a rejected operation, not a fatal error.
func (s *CheckInService) Finalize(ctx context.Context, tenantID, checkInID uuid.UUID, rating int, finalizedBy uuid.UUID) (*checkin.CheckIn, error) {
	if finalizedBy == uuid.Nil {
		return nil, newValidationError("finalized_by is required", nil)
	}
	finalized, err := s.transition(ctx, tenantID, checkInID, func(c checkin.CheckIn) (checkin.CheckIn, error) {
		return c.Finalize(rating, finalizedBy, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(checkin.FinalizedEvent{
		TenantID:       finalized.TenantID(),
		CheckInID:      finalized.ID(),
		SubjectID:      finalized.SubjectID(),
		DimensionID:    finalized.DimensionID(),
		Kind:           finalized.Kind(),
		OfficialRating: rating,
		FinalizedByID:  finalizedBy,
		FinalizedAt:    *finalized.OfficialCompletedAt(),
	})
	return finalized, nil
}

func (s *CheckInService) Acknowledge(ctx context.Context, tenantID, checkInID uuid.UUID) (*checkin.CheckIn, error) {
	return s.transition(ctx, tenantID, checkInID, func(c checkin.CheckIn) (checkin.CheckIn, error) {
		return c.Acknowledge(time.Now().UTC()), nil
	})
}

func (s *CheckInService) ListOpenBySubject(ctx context.Context, tenantID, subjectID uuid.UUID) ([]checkin.CheckIn, error) {
	out, err := s.repo.ListOpenBySubject(composables.WithTenantID(ctx, tenantID), subjectID)
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

func (s *CheckInService) transition(ctx context.Context, tenantID, checkInID uuid.UUID, fn func(checkin.CheckIn) (checkin.CheckIn, error)) (*checkin.CheckIn, error) {
	if checkInID == uuid.Nil {
		return nil, newValidationError("check_in_id is required", nil)
	}
	return inTx(ctx, tenantID, func(txCtx context.Context) (*checkin.CheckIn, error) {
		c, err := s.mustGet(txCtx, checkInID)
		if err != nil {
			return nil, err
		}
		next, err := fn(*c)
		if err != nil {
			return nil, mapCheckInError(err)
		}
		updated, err := s.repo.Update(txCtx, next)
		if err != nil {
			return nil, mapPgError(err)
		}
		return &updated, nil
	})
}

func (s *CheckInService) mustGet(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapPgError(err)
	}
	if c == nil {
		return nil, newNotFoundError("check-in not found", nil)
	}
	return c, nil
}

func mapCheckInError(err error) error {
	switch {
	case errors.Is(err, checkin.ErrNotReady),
		errors.Is(err, checkin.ErrAlreadyFinalized):
		return newStateConflictError(err.Error(), err)
	case errors.Is(err, checkin.ErrUnknownSide):
		return newValidationError(err.Error(), err)
	default:
		return err
	}
}
