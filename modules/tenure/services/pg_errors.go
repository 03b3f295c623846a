package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newNotFoundError("not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "tenures_one_open_per_key":
			return newStateConflictError("an open tenure already exists for this subject and dimension", err)
		case "check_ins_one_open_per_key":
			return newStateConflictError("an open check-in already exists for this subject and dimension", err)
		default:
			return newStateConflictError("unique constraint violated", err)
		}
	case "23P01": // exclusion_violation
		recordWriteConflict("overlap")
		return newStateConflictError("tenure intervals must not overlap", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "TENURE_REFERENCE_NOT_FOUND", "referenced record not found", err)
	case "23514": // check_violation
		return newValidationError("constraint check failed", err)
	default:
		return newExecutionError(fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

func mapPgError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return mapPgErrorToServiceError(err)
}
