package dolt

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agoralabs/agora/internal/storage"
)

// wrapDBError wraps a database error with operation context, normalizing
// driver conditions to the shared sentinels. Transient congestion maps to
// ErrTooBusy without retrying; the client library owns retry policy.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isTransientError(err):
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrTooBusy)
	case isDuplicateError(err):
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrDuplicateID)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isTransientError matches the contention and connection failures a
// dolt sql-server surfaces under load. The MySQL driver exposes these as
// strings, so we match on them:
//   - 1205 lock wait timeout, 1213 deadlock, 1105 optimistic lock
//   - 1040 too many connections
//   - stale pool connections and brief network blips
//   - dolt dropping to read-only under load
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"lock wait timeout",
		"deadlock",
		"serialization failure",
		"optimistic lock failed",
		"too many connections",
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// isDuplicateError matches MySQL error 1062 and dolt's own phrasing for
// primary key collisions.
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate primary key") ||
		strings.Contains(msg, "duplicate unique key")
}
