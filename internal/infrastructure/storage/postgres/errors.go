package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"opsdesk/internal/core/numbering"
)

// SQLSTATE codes the backend reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsRetryable reports whether a transaction failed with a serialization
// failure or deadlock and may succeed when re-run from the start.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// storeErr marks a database failure as a counter store outage.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", numbering.ErrStoreUnavailable, op, err)
}
