package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var (
	errConflict      = serrors.NewError("IAM_CONFLICT", "conflicting record exists", "IAM.Errors.Conflict")
	errHasDependents = serrors.NewError("IAM_HAS_DEPENDENTS", "record has dependents", "IAM.Errors.HasDependents")
	errValidation    = serrors.NewError("IAM_VALIDATION", "validation failed", "IAM.Errors.Validation")
)

// mapPgError translates driver errors into the service error taxonomy.
// notFound is the caller's entity-specific not-found sentinel.
func mapPgError(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return errConflict
	case "23503": // foreign_key_violation
		return errHasDependents
	case "23514": // check_violation
		return errValidation
	}
	return err
}
