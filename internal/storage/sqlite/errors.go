package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agoralabs/agora/internal/storage"
)

// wrapDBError wraps a database error with operation context, normalizing
// driver conditions to the shared sentinels: sql.ErrNoRows becomes
// ErrNotFound, lock contention becomes ErrTooBusy, and unique constraint
// violations become ErrDuplicateID. Backends never retry; callers decide.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isBusyError(err):
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrTooBusy)
	case isUniqueConstraintError(err):
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrDuplicateID)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isBusyError checks for SQLITE_BUSY / SQLITE_LOCKED conditions. The
// driver surfaces these as strings, so we match on them; busy_timeout
// has already expired by the time one reaches us.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// isUniqueConstraintError checks if an error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT_PRIMARYKEY") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT_UNIQUE")
}
