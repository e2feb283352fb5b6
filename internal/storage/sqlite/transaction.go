package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// beginImmediateWithRetry starts a BEGIN IMMEDIATE transaction on a
// dedicated connection, retrying on SQLITE_BUSY with doubling backoff.
//
// IMMEDIATE acquires the RESERVED lock up front, which serializes
// read-modify-write sequences across concurrent writers. database/sql
// cannot express transaction modes through BeginTx, so the statement runs
// raw on the connection.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, initialDelay time.Duration) error {
	delay := initialDelay
	var err error
	for i := 0; i < attempts; i++ {
		_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
