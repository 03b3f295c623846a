package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/groveops/grove/modules/tenure/domain/interval"
	"github.com/groveops/grove/pkg/composables"
)

const tenureColumns = `
	tenant_id,
	id,
	subject_id,
	dimension_id,
	kind,
	started_at,
	ended_at,
	anticipated_energy_percentage,
	official_rating,
	created_at,
	updated_at`

type IntervalRepository struct{}

func NewIntervalRepository() interval.Repository {
	return &IntervalRepository{}
}

func (r *IntervalRepository) Open(ctx context.Context, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+tenureColumns+`
FROM tenures
WHERE tenant_id=$1 AND subject_id=$2 AND dimension_id=$3 AND kind=$4 AND ended_at IS NULL
`, pgUUID(tenantID), pgUUID(subjectID), pgUUID(dimensionID), string(kind))

	t, err := scanTenure(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *IntervalRepository) MostRecent(ctx context.Context, subjectID, dimensionID uuid.UUID, kind interval.Kind) (*interval.Tenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+tenureColumns+`
FROM tenures
WHERE tenant_id=$1 AND subject_id=$2 AND dimension_id=$3 AND kind=$4
ORDER BY started_at DESC, created_at DESC
LIMIT 1
`, pgUUID(tenantID), pgUUID(subjectID), pgUUID(dimensionID), string(kind))

	t, err := scanTenure(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *IntervalRepository) ListBySubject(ctx context.Context, subjectID uuid.UUID, kind interval.Kind) ([]interval.Tenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+tenureColumns+`
FROM tenures
WHERE tenant_id=$1 AND subject_id=$2 AND kind=$3
ORDER BY started_at ASC, created_at ASC
`, pgUUID(tenantID), pgUUID(subjectID), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interval.Tenure
	for rows.Next() {
		t, err := scanTenure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *IntervalRepository) Insert(ctx context.Context, t interval.Tenure) (interval.Tenure, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return interval.Tenure{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return interval.Tenure{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO tenures (
	tenant_id, subject_id, dimension_id, kind, started_at,
	anticipated_energy_percentage, official_rating
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING`+tenureColumns+`
`, pgUUID(tenantID), pgUUID(t.SubjectID()), pgUUID(t.DimensionID()), string(t.Kind()),
		pgDate(t.StartedAt()), t.AnticipatedEnergyPercentage(), pgIntPtr(t.OfficialRating()))

	return scanTenure(row)
}

func (r *IntervalRepository) End(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
UPDATE tenures
SET ended_at=$3, updated_at=now()
WHERE tenant_id=$1 AND id=$2 AND ended_at IS NULL
`, pgUUID(tenantID), pgUUID(id), pgDate(endedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanTenure(row pgRow) (interval.Tenure, error) {
	var (
		tenantID  pgtype.UUID
		id        pgtype.UUID
		subjectID pgtype.UUID
		dimension pgtype.UUID
		kind      string
		startedAt pgtype.Date
		endedAt   pgtype.Date
		energy    int
		official  pgtype.Int4
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&tenantID, &id, &subjectID, &dimension, &kind,
		&startedAt, &endedAt, &energy, &official,
		&createdAt, &updatedAt,
	); err != nil {
		return interval.Tenure{}, err
	}
	return interval.Hydrate(
		asUUID(tenantID), asUUID(id), asUUID(subjectID), asUUID(dimension),
		interval.Kind(kind), asDate(startedAt), asDatePtr(endedAt),
		interval.Attributes{
			AnticipatedEnergyPercentage: energy,
			OfficialRating:              asIntPtr(official),
		},
		asTime(createdAt), asTime(updatedAt),
	), nil
}
