package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/groveops/grove/modules/tenure/domain/milestone"
	"github.com/groveops/grove/pkg/composables"
)

const milestoneColumns = `
	tenant_id,
	id,
	subject_id,
	kind,
	title,
	body,
	status,
	created_at,
	updated_at`

type MilestoneRepository struct{}

func NewMilestoneRepository() milestone.Repository {
	return &MilestoneRepository{}
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*milestone.Milestone, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+milestoneColumns+`
FROM milestones
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))

	m, err := scanMilestone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MilestoneRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]milestone.Milestone, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+milestoneColumns+`
FROM milestones
WHERE tenant_id=$1 AND subject_id=$2
ORDER BY created_at ASC
`, pgUUID(tenantID), pgUUID(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []milestone.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MilestoneRepository) Upsert(ctx context.Context, m milestone.Milestone) (milestone.Milestone, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return milestone.Milestone{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return milestone.Milestone{}, err
	}

	id := m.ID()
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
INSERT INTO milestones (tenant_id, id, subject_id, kind, title, body, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (tenant_id, id) DO UPDATE
SET title=EXCLUDED.title, body=EXCLUDED.body, status=EXCLUDED.status, updated_at=now()
RETURNING`+milestoneColumns+`
`, pgUUID(tenantID), pgUUID(id), pgUUID(m.SubjectID()), string(m.Kind()), m.Title(), m.Body(), m.Status())

	return scanMilestone(row)
}

func scanMilestone(row pgRow) (milestone.Milestone, error) {
	var (
		tenantID  pgtype.UUID
		id        pgtype.UUID
		subjectID pgtype.UUID
		kind      string
		title     string
		body      string
		status    string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&tenantID, &id, &subjectID, &kind, &title, &body, &status,
		&createdAt, &updatedAt,
	); err != nil {
		return milestone.Milestone{}, err
	}
	return milestone.Hydrate(
		asUUID(tenantID), asUUID(id), asUUID(subjectID), milestone.Kind(kind),
		title, body, status, asTime(createdAt), asTime(updatedAt),
	), nil
}
