package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"partyreg/pkg/problems"
)

const (
	pgUniqueViolation       = "23505"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	// Raised by the register.* functions when a business rule rejects an
	// update; the column name rides in the error detail when available.
	pgBusinessRuleViolation = "ZZ001"
)

// Primary-key conflicts fall through to the ON CONFLICT update path and
// never surface; everything here is a cross-party identity collision.
var conflictConstraintColumns = map[string]string{
	"uq_party_id":                      "id",
	"uq_party_person_identifier":       "person_identifier",
	"uq_party_organization_identifier": "organization_identifier",
	"uq_user_id":                       "user_id",
}

func pgErrorCode(err error) string {
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

// translatePartyError maps store errors onto the mutation problem
// taxonomy. Unrecognized errors pass through untouched; transient
// connectivity and serialization failures are the caller's to handle.
func translatePartyError(err error) error {
	pgErr, ok := errors.AsType[*pgconn.PgError](err)
	if !ok || pgErr == nil {
		return err
	}
	switch strings.TrimSpace(pgErr.Code) {
	case pgUniqueViolation:
		constraint := strings.TrimSpace(pgErr.ConstraintName)
		if column, known := conflictConstraintColumns[constraint]; known {
			return problems.NewConflict(constraint, column)
		}
		return problems.NewConflict(constraint, "")
	case pgBusinessRuleViolation:
		return problems.NewInvalidUpdate(strings.TrimSpace(pgErr.ColumnName), strings.TrimSpace(pgErr.Message))
	default:
		return err
	}
}

// IsSerializationFailure reports whether err is a transient isolation
// conflict. The store never retries; callers owning the transaction
// boundary use this predicate to decide whether to replay it.
func IsSerializationFailure(err error) bool {
	switch pgErrorCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	default:
		return false
	}
}
