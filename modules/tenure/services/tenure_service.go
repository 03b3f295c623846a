package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/pkg/composables"
)

// TenureService is the temporal interval store: it answers open/most-recent
// lookups and performs supersession. Supersede and EndOpen must run inside the
// caller's transaction; they are not atomic on their own.
type TenureService struct {
	repo interval.Repository
}

func NewTenureService(repo interval.Repository) *TenureService {
	return &TenureService{repo: repo}
}

func (s *TenureService) OpenInterval(ctx context.Context, tenantID, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	if !kind.Valid() {
		return nil, newValidationError("tenure kind is invalid", nil)
	}
	t, err := s.repo.Open(composables.WithTenantID(ctx, tenantID), subjectID, dimensionID, kind)
	if err != nil {
		return nil, mapPgError(err)
	}
	return t, nil
}

// MostRecent returns the interval with the greatest start date, open or not.
// The UI uses it to pre-populate proposals from the last known state.
func (s *TenureService) MostRecent(ctx context.Context, tenantID, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	if !kind.Valid() {
		return nil, newValidationError("tenure kind is invalid", nil)
	}
	t, err := s.repo.MostRecent(composables.WithTenantID(ctx, tenantID), subjectID, dimensionID, kind)
	if err != nil {
		return nil, mapPgError(err)
	}
	return t, nil
}

func (s *TenureService) ListBySubject(ctx context.Context, tenantID, subjectID uuid.UUID, kind interval.Kind) ([]interval.Tenure, error) {
	out, err := s.repo.ListBySubject(composables.WithTenantID(ctx, tenantID), subjectID, kind)
	if err != nil {
		return nil, mapPgError(err)
	}
	return out, nil
}

type SupersedeInput struct {
	SubjectID     uuid.UUID
	DimensionID   uuid.UUID
	Kind          interval.Kind
	Attributes    interval.Attributes
	EffectiveDate time.Time
}

type SupersedeResult struct {
	Closed *interval.Tenure
	Opened *interval.Tenure
	// NoOp is set when the open interval already carries the requested
	// attributes; no history row is written in that case.
	NoOp bool
}

// Supersede closes the open interval for the key (if any) and opens a new one
// with the given attributes. Requires a transaction in ctx.
func (s *TenureService) Supersede(ctx context.Context, in SupersedeInput) (*SupersedeResult, error) {
	if !in.Kind.Valid() {
		return nil, newValidationError("tenure kind is invalid", nil)
	}
	if in.SubjectID == uuid.Nil || in.DimensionID == uuid.Nil {
		return nil, newValidationError("subject_id/dimension_id are required", nil)
	}
	if in.EffectiveDate.IsZero() {
		return nil, newValidationError("effective_date is required", nil)
	}

	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	open, err := s.repo.Open(ctx, in.SubjectID, in.DimensionID, in.Kind)
	if err != nil {
		return nil, mapPgError(err)
	}

	startedAt := normalizeValidDateUTC(in.EffectiveDate)
	var closed *interval.Tenure
	if open != nil {
		if open.Attributes().Equal(in.Attributes) {
			return &SupersedeResult{NoOp: true}, nil
		}
		boundary := supersessionBoundary(open.StartedAt(), in.EffectiveDate)
		if err := s.repo.End(ctx, open.ID(), boundary); err != nil {
			return nil, mapPgError(err)
		}
		startedAt = boundary
		ended := open.Ended(boundary)
		closed = &ended
	}

	opened, err := s.repo.Insert(ctx, interval.New(tenantID, in.SubjectID, in.DimensionID, in.Kind, startedAt, in.Attributes))
	if err != nil {
		return nil, mapPgError(err)
	}
	return &SupersedeResult{Closed: closed, Opened: &opened}, nil
}

// EndOpen closes the open interval for the key without opening a successor.
// Requires a transaction in ctx.
func (s *TenureService) EndOpen(ctx context.Context, subjectID, dimensionID uuid.UUID, kind interval.Kind, endDate time.Time) (*interval.Tenure, error) {
	open, err := s.repo.Open(ctx, subjectID, dimensionID, kind)
	if err != nil {
		return nil, mapPgError(err)
	}
	if open == nil {
		return nil, newStateConflictError("no open tenure to end for this subject and dimension", nil)
	}
	boundary := supersessionBoundary(open.StartedAt(), endDate)
	if err := s.repo.End(ctx, open.ID(), boundary); err != nil {
		return nil, mapPgError(err)
	}
	ended := open.Ended(boundary)
	return &ended, nil
}
