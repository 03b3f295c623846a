package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/pkg/composables"
)

const checkInColumns = `
	tenant_id,
	id,
	subject_id,
	dimension_id,
	kind,
	employee_rating,
	employee_private_notes,
	employee_completed_at,
	manager_rating,
	manager_private_notes,
	manager_completed_at,
	official_rating,
	shared_notes,
	official_completed_at,
	finalized_by_id,
	employee_acknowledged_at,
	created_at,
	updated_at`

type CheckInRepository struct{}

func NewCheckInRepository() checkin.Repository {
	return &CheckInRepository{}
}

func (r *CheckInRepository) GetByID(ctx context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+checkInColumns+`
FROM check_ins
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))

	c, err := scanCheckIn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CheckInRepository) FindOpen(ctx context.Context, subjectID, dimensionID uuid.UUID, kind checkin.Kind) (*checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+checkInColumns+`
FROM check_ins
WHERE tenant_id=$1 AND subject_id=$2 AND dimension_id=$3 AND kind=$4 AND official_completed_at IS NULL
`, pgUUID(tenantID), pgUUID(subjectID), pgUUID(dimensionID), string(kind))

	c, err := scanCheckIn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CheckInRepository) ListOpenBySubject(ctx context.Context, subjectID uuid.UUID) ([]checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+checkInColumns+`
FROM check_ins
WHERE tenant_id=$1 AND subject_id=$2 AND official_completed_at IS NULL
ORDER BY created_at ASC
`, pgUUID(tenantID), pgUUID(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkin.CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CheckInRepository) Insert(ctx context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return checkin.CheckIn{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return checkin.CheckIn{}, err
	}

	row := tx.QueryRow(ctx, `
INSERT INTO check_ins (tenant_id, subject_id, dimension_id, kind)
VALUES ($1, $2, $3, $4)
RETURNING`+checkInColumns+`
`, pgUUID(tenantID), pgUUID(c.SubjectID()), pgUUID(c.DimensionID()), string(c.Kind()))

	return scanCheckIn(row)
}

func (r *CheckInRepository) Update(ctx context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return checkin.CheckIn{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return checkin.CheckIn{}, err
	}

	var finalizedBy pgtype.UUID
	if c.FinalizedByID() != uuid.Nil {
		finalizedBy = pgUUID(c.FinalizedByID())
	}

	row := tx.QueryRow(ctx, `
UPDATE check_ins SET
	employee_rating=$3,
	employee_private_notes=$4,
	employee_completed_at=$5,
	manager_rating=$6,
	manager_private_notes=$7,
	manager_completed_at=$8,
	official_rating=$9,
	shared_notes=$10,
	official_completed_at=$11,
	finalized_by_id=$12,
	employee_acknowledged_at=$13,
	updated_at=now()
WHERE tenant_id=$1 AND id=$2
RETURNING`+checkInColumns+`
`, pgUUID(tenantID), pgUUID(c.ID()),
		pgIntPtr(c.EmployeeRating()), c.EmployeePrivateNotes(), c.EmployeeCompletedAt(),
		pgIntPtr(c.ManagerRating()), c.ManagerPrivateNotes(), c.ManagerCompletedAt(),
		pgIntPtr(c.OfficialRating()), c.SharedNotes(), c.OfficialCompletedAt(),
		finalizedBy, c.EmployeeAcknowledgedAt())

	return scanCheckIn(row)
}

func scanCheckIn(row pgRow) (checkin.CheckIn, error) {
	var (
		tenantID       pgtype.UUID
		id             pgtype.UUID
		subjectID      pgtype.UUID
		dimensionID    pgtype.UUID
		kind           string
		employeeRating pgtype.Int4
		employeeNotes  string
		employeeDone   pgtype.Timestamptz
		managerRating  pgtype.Int4
		managerNotes   string
		managerDone    pgtype.Timestamptz
		officialRating pgtype.Int4
		sharedNotes    string
		officialDone   pgtype.Timestamptz
		finalizedBy    pgtype.UUID
		acknowledgedAt pgtype.Timestamptz
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
	)
	if err := row.Scan(
		&tenantID, &id, &subjectID, &dimensionID, &kind,
		&employeeRating, &employeeNotes, &employeeDone,
		&managerRating, &managerNotes, &managerDone,
		&officialRating, &sharedNotes, &officialDone, &finalizedBy,
		&acknowledgedAt, &createdAt, &updatedAt,
	); err != nil {
		return checkin.CheckIn{}, err
	}
	return checkin.Hydrate(
		asUUID(tenantID), asUUID(id), asUUID(subjectID), asUUID(dimensionID),
		checkin.Kind(kind),
		asIntPtr(employeeRating), employeeNotes, asTimePtr(employeeDone),
		asIntPtr(managerRating), managerNotes, asTimePtr(managerDone),
		asIntPtr(officialRating), sharedNotes, asTimePtr(officialDone), asUUID(finalizedBy),
		asTimePtr(acknowledgedAt), asTime(createdAt), asTime(updatedAt),
	), nil
}
