package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/groveops/grove/modules/tenure/domain/changeset"
	"github.com/groveops/grove/pkg/composables"
)

const snapshotColumns = `
	tenant_id,
	id,
	subject_id,
	created_by_id,
	change_type,
	reason,
	provenance,
	deltas,
	data,
	phase,
	effective_date,
	employee_acknowledged_at,
	created_at`

type SnapshotRepository struct{}

func NewSnapshotRepository() changeset.Repository {
	return &SnapshotRepository{}
}

func (r *SnapshotRepository) Insert(ctx context.Context, s changeset.Snapshot) (changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}

	deltasRaw, err := changeset.MarshalDeltas(s.Deltas())
	if err != nil {
		return changeset.Snapshot{}, err
	}
	provenanceRaw, err := json.Marshal(s.RequestProvenance())
	if err != nil {
		return changeset.Snapshot{}, err
	}
	var dataRaw []byte
	if s.Data() != nil {
		if dataRaw, err = json.Marshal(s.Data()); err != nil {
			return changeset.Snapshot{}, err
		}
	}

	row := tx.QueryRow(ctx, `
INSERT INTO change_snapshots (
	tenant_id, subject_id, created_by_id, change_type, reason,
	provenance, deltas, data, phase
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING`+snapshotColumns+`
`, pgUUID(tenantID), pgUUID(s.SubjectID()), pgUUID(s.CreatedByID()),
		string(s.ChangeType()), s.Reason(), provenanceRaw, deltasRaw, dataRaw, string(s.Phase()))

	return scanSnapshot(row)
}

func (r *SnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+snapshotColumns+`
FROM change_snapshots
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))

	s, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LockPendingByID takes the row lock for execution. Concurrent executions of
// the same snapshot queue up here; the loser then sees an executed row.
func (r *SnapshotRepository) LockPendingByID(ctx context.Context, id uuid.UUID) (*changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
SELECT`+snapshotColumns+`
FROM change_snapshots
WHERE tenant_id=$1 AND id=$2 AND effective_date IS NULL
FOR UPDATE
`, pgUUID(tenantID), pgUUID(id))

	s, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SnapshotRepository) ListPendingBySubject(ctx context.Context, subjectID uuid.UUID) ([]changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT`+snapshotColumns+`
FROM change_snapshots
WHERE tenant_id=$1 AND subject_id=$2 AND effective_date IS NULL
ORDER BY created_at ASC, id ASC
`, pgUUID(tenantID), pgUUID(subjectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []changeset.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SnapshotRepository) UpdateResolved(ctx context.Context, id uuid.UUID, deltas []changeset.Delta, data changeset.Data, phase changeset.Phase) (changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}

	deltasRaw, err := changeset.MarshalDeltas(deltas)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	dataRaw, err := json.Marshal(data)
	if err != nil {
		return changeset.Snapshot{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE change_snapshots
SET deltas=$3, data=$4, phase=$5
WHERE tenant_id=$1 AND id=$2 AND effective_date IS NULL
RETURNING`+snapshotColumns+`
`, pgUUID(tenantID), pgUUID(id), deltasRaw, dataRaw, string(phase))

	return scanSnapshot(row)
}

func (r *SnapshotRepository) MarkExecuted(ctx context.Context, id uuid.UUID, effectiveDate time.Time) (changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE change_snapshots
SET phase='executed', effective_date=$3
WHERE tenant_id=$1 AND id=$2 AND effective_date IS NULL
RETURNING`+snapshotColumns+`
`, pgUUID(tenantID), pgUUID(id), pgDate(effectiveDate))

	return scanSnapshot(row)
}

func (r *SnapshotRepository) Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) (changeset.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return changeset.Snapshot{}, err
	}

	row := tx.QueryRow(ctx, `
UPDATE change_snapshots
SET employee_acknowledged_at=COALESCE(employee_acknowledged_at, $3)
WHERE tenant_id=$1 AND id=$2
RETURNING`+snapshotColumns+`
`, pgUUID(tenantID), pgUUID(id), at.UTC())

	return scanSnapshot(row)
}

func (r *SnapshotRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
DELETE FROM change_snapshots
WHERE tenant_id=$1 AND id=$2 AND effective_date IS NULL
`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanSnapshot(row pgRow) (changeset.Snapshot, error) {
	var (
		tenantID       pgtype.UUID
		id             pgtype.UUID
		subjectID      pgtype.UUID
		createdByID    pgtype.UUID
		changeType     string
		reason         string
		provenanceRaw  []byte
		deltasRaw      []byte
		dataRaw        []byte
		phase          string
		effectiveDate  pgtype.Date
		acknowledgedAt pgtype.Timestamptz
		createdAt      pgtype.Timestamptz
	)
	if err := row.Scan(
		&tenantID, &id, &subjectID, &createdByID, &changeType, &reason,
		&provenanceRaw, &deltasRaw, &dataRaw, &phase,
		&effectiveDate, &acknowledgedAt, &createdAt,
	); err != nil {
		return changeset.Snapshot{}, err
	}

	var provenance changeset.Provenance
	if len(provenanceRaw) > 0 {
		if err := json.Unmarshal(provenanceRaw, &provenance); err != nil {
			return changeset.Snapshot{}, err
		}
	}
	deltas, err := changeset.UnmarshalDeltas(deltasRaw)
	if err != nil {
		return changeset.Snapshot{}, err
	}
	var data *changeset.Data
	if len(dataRaw) > 0 {
		data = &changeset.Data{}
		if err := json.Unmarshal(dataRaw, data); err != nil {
			return changeset.Snapshot{}, err
		}
	}

	return changeset.Hydrate(
		asUUID(tenantID), asUUID(id), asUUID(subjectID), asUUID(createdByID),
		changeset.ChangeType(changeType), reason, provenance,
		deltas, data, changeset.Phase(phase),
		asDatePtr(effectiveDate), asTimePtr(acknowledgedAt), asTime(createdAt),
	), nil
}
