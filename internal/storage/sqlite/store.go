// Package sqlite implements the journal backend on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/agoralabs/agora/internal/storage"
)

// Store implements storage.Backend on a single SQLite database file.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool

	// writeSem bounds concurrent writers. SQLite WAL mode allows one
	// writer at a time; admitting more goroutines than CPUs just piles
	// them up on the write lock.
	writeSem *semaphore.Weighted

	participants *participantStore
	actions      *actionStore
	logs         *logStore
}

var _ storage.Backend = (*Store)(nil)

// memCounter disambiguates shared-cache in-memory databases so separate
// Opens in one process do not see each other's tables.
var memCounter atomic.Int64

// setupWASMCache configures WASM compilation caching to reduce SQLite
// startup time. The compiled module lands in the user cache dir and is
// reused across runs; wazero keys the cache by its own version. Falls
// back to an in-memory cache when the filesystem cache cannot be created.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "agora", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}

	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)

	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// Open opens (creating if needed) a SQLite-backed journal at path.
// The path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))

	if path == ":memory:" {
		// Shared cache with a unique name so the pool's connections see
		// one database, but separate Opens stay isolated. WAL does not
		// work for in-memory databases, so journal_mode stays DELETE.
		name := fmt.Sprintf("agoramem%d", memCounter.Add(1))
		connStr = "file:" + name + "?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	} else if strings.HasPrefix(path, "file:") {
		connStr = storage.SQLiteConnString(path, false)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = storage.SQLiteConnString(path, false)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var maxWriters int64
	if isInMemory {
		// In-memory databases are per-connection by default; a single
		// pooled connection keeps every query on the same database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		maxWriters = 1
	} else {
		// 1 writer + N readers. WAL supports unlimited readers, but an
		// unbounded pool lets goroutines pile up on the write lock.
		maxConns := runtime.NumCPU() + 1
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
		maxWriters = int64(runtime.NumCPU())

		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	s := &Store{
		db:       db,
		dbPath:   path,
		writeSem: semaphore.NewWeighted(maxWriters),
	}
	s.participants = &participantStore{s}
	s.actions = &actionStore{s}
	s.logs = &logStore{s}

	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
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

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path this store was opened with.
func (s *Store) Path() string { return s.dbPath }

// acquireWrite gates a write against the admission semaphore.
func (s *Store) acquireWrite(ctx context.Context) (release func(), err error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.writeSem.Release(1) }, nil
}
