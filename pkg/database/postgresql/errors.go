package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsContention reports whether err came from waiting on another
// transaction: lock timeout, serialization conflict, deadlock, or an
// expired deadline while acquiring a connection.
func IsContention(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
		return true
	}
	return false
}

// ConditionName returns the SQLSTATE condition name, e.g. "unique_violation",
// or "" when err is not a server error.
func ConditionName(err error) string {
	code := pgCode(err)
	if code == "" {
		return ""
	}
	return pq.ErrorCode(code).Name()
}
