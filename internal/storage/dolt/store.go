// Package dolt implements the journal backend on Dolt, the MySQL-compatible
// versioned database.
//
// Connection modes:
//   - Server: connect to a running dolt sql-server via the MySQL protocol.
//     Supports multiple gateway processes against one database.
//   - Embedded: open the database in-process via github.com/dolthub/driver.
//     Requires cgo; single-writer like SQLite.
//
// Rows carry the same JSON payloads as the sqlite backend, and the query
// compiler resolves the same predicate trees, so callers observe identical
// results on equivalent data.
package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	// Import MySQL driver for server mode connections
	_ "github.com/go-sql-driver/mysql"

	"github.com/agoralabs/agora/internal/storage"
)

// DefaultSQLPort is the port dolt sql-server listens on unless told otherwise.
const DefaultSQLPort = 3306

// Config holds Dolt connection configuration.
type Config struct {
	// Database is the database name within Dolt (default: "agora").
	Database string

	// Server mode options. Server mode is the default.
	Host     string // server host (default: 127.0.0.1)
	Port     int    // server port (default: 3306)
	User     string // MySQL user (default: root)
	Password string // MySQL password (default: empty, or AGORA_DOLT_PASSWORD)
	TLS      bool   // enable TLS for server connections

	// DSN, when set, bypasses the assembled server connection string.
	// Used by tests that point at a container-provisioned server.
	DSN string

	// Embedded mode options. Embedded requires cgo.
	Embedded       bool
	DataDir        string // directory containing the Dolt database
	CommitterName  string // git-style committer identity for dolt commits
	CommitterEmail string
}

// Store implements storage.Backend on a Dolt database.
type Store struct {
	db       *sql.DB
	database string
	closed   atomic.Bool

	// embeddedCloser is non-nil only in embedded mode. The connector must
	// be closed to release the filesystem locks held by the engine.
	embeddedCloser func() error

	participants *participantStore
	actions      *actionStore
	logs         *logStore
}

var _ storage.Backend = (*Store)(nil)

// Open connects to a Dolt database and ensures the journal schema exists.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	var (
		db      *sql.DB
		closeFn func() error
		err     error
	)
	if cfg.Embedded {
		db, closeFn, err = openEmbedded(ctx, cfg)
	} else {
		db, err = openServer(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	// The embedded driver derives a session context from the first
	// connection; ping with a non-canceling context so a short-lived
	// caller context cannot poison the pool.
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("failed to ping dolt database: %w", err)
	}

	s := &Store{
		db:             db,
		database:       cfg.Database,
		embeddedCloser: closeFn,
	}
	s.participants = &participantStore{s}
	s.actions = &actionStore{s}
	s.logs = &logStore{s}

	if err := ensureSchema(ctx, db); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = "agora"
	}
	if cfg.Embedded {
		if cfg.CommitterName == "" {
			cfg.CommitterName = "agora"
		}
		if cfg.CommitterEmail == "" {
			cfg.CommitterEmail = "agora@local"
		}
		return
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSQLPort
	}
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("AGORA_DOLT_PASSWORD")
	}
}

// openServer connects to a dolt sql-server via the MySQL protocol.
func openServer(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if cfg.DSN != "" {
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open dolt server connection: %w", err)
		}
		configurePool(db)
		return db, nil
	}

	if err := validateDatabaseName(cfg.Database); err != nil {
		return nil, fmt.Errorf("invalid database name %q: %w", cfg.Database, err)
	}

	// Fail-fast TCP probe before MySQL protocol initialization so an
	// absent server produces an immediate, clear error instead of a
	// driver timeout.
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	probe, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("dolt server unreachable at %s: %w\n\nStart one with:\n  agorad dolt-server start --data-dir <dir>", addr, err)
	}
	_ = probe.Close()

	// Create the database through a database-less connection first.
	initDB, err := sql.Open("mysql", buildServerDSN(cfg, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to open init connection: %w", err)
	}
	_, err = initDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
	cerr := initDB.Close()
	if err != nil {
		// Dolt can answer 1007 even with IF NOT EXISTS.
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "database exists") && !strings.Contains(msg, "1007") {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	if cerr != nil {
		return nil, fmt.Errorf("failed to close init connection: %w", cerr)
	}

	db, err := sql.Open("mysql", buildServerDSN(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open dolt server connection: %w", err)
	}
	configurePool(db)
	return db, nil
}

// configurePool sets the server mode pool. The server supports concurrent
// writers, so a modest pool beats single-connection serialization.
func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// buildServerDSN constructs a MySQL DSN for a dolt sql-server. An empty
// database connects without selecting one, for init operations.
func buildServerDSN(cfg *Config, database string) string {
	userPart := cfg.User
	if cfg.Password != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
	}

	params := "parseTime=true&loc=UTC"
	if cfg.TLS {
		params += "&tls=true"
	}

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", userPart, cfg.Host, cfg.Port, database, params)
}

// validateDatabaseName guards the one spot where the database name is
// interpolated into SQL.
func validateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("character %q not allowed", r)
		}
	}
	return nil
}

// ensureSchema creates the journal tables if they do not exist. MySQL
// cannot run multiple statements in one Exec, so the script is split.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w\nstatement: %s", err, truncateForError(stmt))
		}
	}
	return nil
}

// splitStatements splits a SQL script on semicolons, respecting string
// and identifier quoting.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := byte(0)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}

		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}

		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" && !isOnlyComments(stmt) {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(c)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" && !isOnlyComments(stmt) {
		statements = append(statements, stmt)
	}
	return statements
}

// isOnlyComments reports whether the statement has no executable content.
func isOnlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

func truncateForError(s string) string {
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}

// Participants returns the participants table.
func (s *Store) Participants() storage.ParticipantStore { return s.participants }

// Actions returns the actions journal.
func (s *Store) Actions() storage.ActionStore { return s.actions }

// Logs returns the logs journal.
func (s *Store) Logs() storage.LogStore { return s.logs }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Safe to call more than once.
// The embedded engine can hang during shutdown, so closes are bounded.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	err := closeWithTimeout("db", s.db.Close)
	if s.embeddedCloser != nil {
		if cerr := closeWithTimeout("embedded engine", s.embeddedCloser); cerr != nil && err == nil {
			err = cerr
		}
		s.embeddedCloser = nil
	}
	return err
}

// closeTimeout bounds Close; the embedded engine has hung indefinitely
// during shutdown in the wild.
const closeTimeout = 5 * time.Second

func closeWithTimeout(name string, closeFn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- closeFn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(closeTimeout):
		return fmt.Errorf("%s close timed out after %v", name, closeTimeout)
	}
}
