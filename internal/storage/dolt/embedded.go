//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const embeddedOpenMaxElapsed = 30 * time.Second

// newEmbeddedOpenBackoff returns a fresh retry policy for embedded opens.
// BackOff implementations are stateful, so each open gets its own.
func newEmbeddedOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// openEmbedded opens the database in-process via the embedded Dolt driver.
//
// The DSN must carry an absolute path: the driver sets its internal working
// directory to the configured directory and also passes the path through to
// lower layers, so a relative path gets stacked onto itself.
func openEmbedded(ctx context.Context, cfg *Config) (*sql.DB, func() error, error) {
	if cfg.DataDir == "" {
		return nil, nil, fmt.Errorf("embedded mode requires a data directory")
	}
	if info, err := os.Stat(cfg.DataDir); err == nil && !info.IsDir() {
		return nil, nil, fmt.Errorf("data directory %q is a file, not a directory", cfg.DataDir)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	absPath, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s",
		absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	// Ensure the database exists as its own unit of work with its own
	// connector, then open a fresh connector for the store.
	if err := withEmbedded(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to create dolt database: %w", err)
	}

	db, connector, err := openEmbeddedConnection(dbDSN)
	if err != nil {
		return nil, nil, err
	}
	return db, connector.Close, nil
}

// withEmbedded runs fn against a short-lived embedded connection, closing
// the connector afterwards to release the engine's filesystem locks.
func withEmbedded(ctx context.Context, dsn string, fn func(context.Context, *sql.DB) error) error {
	db, connector, err := openEmbeddedConnection(dsn)
	if err != nil {
		return err
	}
	ferr := fn(ctx, db)
	if cerr := closeWithTimeout("db", db.Close); cerr != nil && ferr == nil {
		ferr = cerr
	}
	if cerr := closeWithTimeout("embedded engine", connector.Close); cerr != nil && ferr == nil {
		ferr = cerr
	}
	return ferr
}

func openEmbeddedConnection(dsn string) (*sql.DB, *embedded.Connector, error) {
	openCfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dolt DSN: %w", err)
	}
	openCfg.BackOff = newEmbeddedOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// The embedded engine is single-writer like SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, connector, nil
}
