package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/modules/tenure/domain/milestone"
	"github.com/groveops/grove/pkg/composables"
	"github.com/groveops/grove/pkg/repo"
)

// fakeTx satisfies pgx.Tx for the commit/rollback surface the services touch.
// The embedded interface is nil; repos in these tests never issue SQL.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error { t.committed = true; return nil }

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return pgx.ErrTxClosed
}

type fakePool struct {
	repo.Tx
	lastTx *fakeTx
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	p.lastTx = &fakeTx{}
	return p.lastTx, nil
}

func testContext() (context.Context, *fakePool) {
	pool := &fakePool{}
	return composables.WithPool(context.Background(), pool), pool
}

// intervalKey identifies one temporal history within the in-memory store.
type intervalKey struct {
	subjectID   uuid.UUID
	dimensionID uuid.UUID
	kind        interval.Kind
}

type memIntervalRepo struct {
	mu   sync.Mutex
	rows map[intervalKey][]interval.Tenure

	insertErr map[intervalKey]error
}

func newMemIntervalRepo() *memIntervalRepo {
	return &memIntervalRepo{
		rows:      make(map[intervalKey][]interval.Tenure),
		insertErr: make(map[intervalKey]error),
	}
}

func (r *memIntervalRepo) key(t interval.Tenure) intervalKey {
	return intervalKey{subjectID: t.SubjectID(), dimensionID: t.DimensionID(), kind: t.Kind()}
}

func (r *memIntervalRepo) Open(_ context.Context, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.rows[intervalKey{subjectID, dimensionID, kind}] {
		if t.IsOpen() {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memIntervalRepo) MostRecent(_ context.Context, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recent *interval.Tenure
	for _, t := range r.rows[intervalKey{subjectID, dimensionID, kind}] {
		t := t
		if recent == nil || t.StartedAt().After(recent.StartedAt()) {
			recent = &t
		}
	}
	return recent, nil
}

func (r *memIntervalRepo) ListBySubject(_ context.Context, subjectID uuid.UUID, kind interval.Kind) ([]interval.Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interval.Tenure
	for k, rows := range r.rows {
		if k.subjectID == subjectID && k.kind == kind {
			out = append(out, rows...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt().Before(out[j].StartedAt()) })
	return out, nil
}

func (r *memIntervalRepo) Insert(_ context.Context, t interval.Tenure) (interval.Tenure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(t)
	if err := r.insertErr[k]; err != nil {
		return interval.Tenure{}, err
	}
	now := time.Now().UTC()
	stored := interval.Hydrate(
		t.TenantID(), uuid.New(), t.SubjectID(), t.DimensionID(), t.Kind(),
		t.StartedAt(), t.EndedAt(), t.Attributes(), now, now,
	)
	r.rows[k] = append(r.rows[k], stored)
	return stored, nil
}

func (r *memIntervalRepo) End(_ context.Context, id uuid.UUID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, rows := range r.rows {
		for i, t := range rows {
			if t.ID() == id {
				end := endedAt
				r.rows[k][i] = interval.Hydrate(
					t.TenantID(), t.ID(), t.SubjectID(), t.DimensionID(), t.Kind(),
					t.StartedAt(), &end, t.Attributes(), t.CreatedAt(), time.Now().UTC(),
				)
				return nil
			}
		}
	}
	return pgx.ErrNoRows
}

// seed inserts a row directly, bypassing service rules, for test setup.
func (r *memIntervalRepo) seed(t interval.Tenure) interval.Tenure {
	stored, _ := r.Insert(context.Background(), t)
	return stored
}

type memCheckInRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]checkin.CheckIn

	updateErr error
}

func newMemCheckInRepo() *memCheckInRepo {
	return &memCheckInRepo{rows: make(map[uuid.UUID]checkin.CheckIn)}
}

func (r *memCheckInRepo) GetByID(_ context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memCheckInRepo) FindOpen(_ context.Context, subjectID, dimensionID uuid.UUID, kind checkin.Kind) (*checkin.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.SubjectID() == subjectID && c.DimensionID() == dimensionID && c.Kind() == kind && !c.IsFinalized() {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memCheckInRepo) ListOpenBySubject(_ context.Context, subjectID uuid.UUID) ([]checkin.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []checkin.CheckIn
	for _, c := range r.rows {
		if c.SubjectID() == subjectID && !c.IsFinalized() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCheckInRepo) Insert(_ context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	stored := checkin.Hydrate(
		c.TenantID(), uuid.New(), c.SubjectID(), c.DimensionID(), c.Kind(),
		c.EmployeeRating(), c.EmployeePrivateNotes(), c.EmployeeCompletedAt(),
		c.ManagerRating(), c.ManagerPrivateNotes(), c.ManagerCompletedAt(),
		c.OfficialRating(), c.SharedNotes(), c.OfficialCompletedAt(), c.FinalizedByID(),
		c.EmployeeAcknowledgedAt(), now, now,
	)
	r.rows[stored.ID()] = stored
	return stored, nil
}

func (r *memCheckInRepo) Update(_ context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return checkin.CheckIn{}, r.updateErr
	}
	if _, ok := r.rows[c.ID()]; !ok {
		return checkin.CheckIn{}, pgx.ErrNoRows
	}
	r.rows[c.ID()] = c
	return c, nil
}

type memSnapshotRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]changeset.Snapshot
	seq  int
}

func newMemSnapshotRepo() *memSnapshotRepo {
	return &memSnapshotRepo{rows: make(map[uuid.UUID]changeset.Snapshot)}
}

func (r *memSnapshotRepo) Insert(_ context.Context, s changeset.Snapshot) (changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	// Monotonic created_at keeps pending ordering deterministic.
	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Second)
	stored := changeset.Hydrate(
		s.TenantID(), uuid.New(), s.SubjectID(), s.CreatedByID(),
		s.ChangeType(), s.Reason(), s.RequestProvenance(),
		s.Deltas(), s.Data(), s.Phase(),
		nil, nil, createdAt,
	)
	r.rows[stored.ID()] = stored
	return stored, nil
}

func (r *memSnapshotRepo) GetByID(_ context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memSnapshotRepo) LockPendingByID(_ context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.Pending() {
		return nil, nil
	}
	return &s, nil
}

func (r *memSnapshotRepo) ListPendingBySubject(_ context.Context, subjectID uuid.UUID) ([]changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []changeset.Snapshot
	for _, s := range r.rows {
		if s.SubjectID() == subjectID && s.Pending() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out, nil
}

func (r *memSnapshotRepo) UpdateResolved(_ context.Context, id uuid.UUID, deltas []changeset.Delta, data changeset.Data, phase changeset.Phase) (changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return changeset.Snapshot{}, pgx.ErrNoRows
	}
	updated := changeset.Hydrate(
		s.TenantID(), s.ID(), s.SubjectID(), s.CreatedByID(),
		s.ChangeType(), s.Reason(), s.RequestProvenance(),
		deltas, &data, phase,
		nil, nil, s.CreatedAt(),
	)
	r.rows[id] = updated
	return updated, nil
}

func (r *memSnapshotRepo) MarkExecuted(_ context.Context, id uuid.UUID, effectiveDate time.Time) (changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return changeset.Snapshot{}, pgx.ErrNoRows
	}
	updated := changeset.Hydrate(
		s.TenantID(), s.ID(), s.SubjectID(), s.CreatedByID(),
		s.ChangeType(), s.Reason(), s.RequestProvenance(),
		s.Deltas(), s.Data(), changeset.PhaseExecuted,
		&effectiveDate, nil, s.CreatedAt(),
	)
	r.rows[id] = updated
	return updated, nil
}

func (r *memSnapshotRepo) Acknowledge(_ context.Context, id uuid.UUID, at time.Time) (changeset.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return changeset.Snapshot{}, pgx.ErrNoRows
	}
	updated := changeset.Hydrate(
		s.TenantID(), s.ID(), s.SubjectID(), s.CreatedByID(),
		s.ChangeType(), s.Reason(), s.RequestProvenance(),
		s.Deltas(), s.Data(), s.Phase(),
		s.EffectiveDate(), &at, s.CreatedAt(),
	)
	r.rows[id] = updated
	return updated, nil
}

func (r *memSnapshotRepo) DeletePending(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || !s.Pending() {
		return pgx.ErrNoRows
	}
	delete(r.rows, id)
	return nil
}

type memMilestoneRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]milestone.Milestone

	upsertErr error
}

func newMemMilestoneRepo() *memMilestoneRepo {
	return &memMilestoneRepo{rows: make(map[uuid.UUID]milestone.Milestone)}
}

func (r *memMilestoneRepo) GetByID(_ context.Context, id uuid.UUID) (*milestone.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *memMilestoneRepo) ListBySubject(_ context.Context, subjectID uuid.UUID) ([]milestone.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []milestone.Milestone
	for _, m := range r.rows {
		if m.SubjectID() == subjectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMilestoneRepo) Upsert(_ context.Context, m milestone.Milestone) (milestone.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return milestone.Milestone{}, r.upsertErr
	}
	id := m.ID()
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	stored := milestone.Hydrate(
		m.TenantID(), id, m.SubjectID(), m.Kind(),
		m.Title(), m.Body(), m.Status(), now, now,
	)
	r.rows[id] = stored
	return stored, nil
}

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func boolPtr(v bool) *bool       { return &v }
func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
