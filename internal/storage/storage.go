// Package storage defines the contract between the marketplace runtime and
// its journal backends.
//
// Concrete backends live in the sqlite, dolt, and sharded sub-packages.
// This package holds the interfaces, the sentinel errors every backend
// normalizes to, and the row payload codec shared by all of them.
package storage

import (
	"context"
	"errors"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when an insert collides with an existing row id.
// It is a permanent error: callers must pick a different id, never retry.
var ErrDuplicateID = errors.New("duplicate id")

// ErrTooBusy is returned when the backend cannot serve the call because of
// transient congestion (lock contention, pool exhaustion, dropped
// connections). Backends never retry internally; the client library owns
// retry policy.
var ErrTooBusy = errors.New("storage too busy")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("storage is closed")

// ParticipantStore is the participants table: registered identities and
// their credentials.
type ParticipantStore interface {
	// Create inserts a new participant row. The id is caller-supplied;
	// a colliding id fails with ErrDuplicateID.
	Create(ctx context.Context, p *types.Participant) (*types.Participant, error)

	GetByID(ctx context.Context, id string) (*types.Participant, error)

	// GetByToken resolves a credential to its participant row.
	GetByToken(ctx context.Context, token string) (*types.Participant, error)

	// GetAll returns rows ordered ascending by row index.
	GetAll(ctx context.Context, rng query.Range) ([]*types.Participant, error)

	// Find returns rows whose data payload matches the predicate tree,
	// ordered ascending by row index. A nil tree matches everything.
	Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Participant, error)

	// Update merges the given keys into the row. The reserved keys
	// "auth_token" and "embedding" address their dedicated columns;
	// every other key is merged into the data payload, with a nil value
	// removing the key. The row index never changes.
	Update(ctx context.Context, id string, updates map[string]any) (*types.Participant, error)

	// Delete removes a row, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	Count(ctx context.Context) (int, error)

	// FindIDsBySubstring returns ids containing the given substring.
	// Used by the id allocator to seed per-base counters.
	FindIDsBySubstring(ctx context.Context, substr string) ([]string, error)
}

// ActionStore is the append-only actions journal. Rows are written exactly
// once and never updated or deleted.
type ActionStore interface {
	Create(ctx context.Context, a *types.Action) (*types.Action, error)
	GetByID(ctx context.Context, id string) (*types.Action, error)
	GetAll(ctx context.Context, rng query.Range) ([]*types.Action, error)
	Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Action, error)
	Count(ctx context.Context) (int, error)
}

// LogStore is the append-only logs journal.
type LogStore interface {
	Create(ctx context.Context, e *types.LogEntry) (*types.LogEntry, error)
	GetByID(ctx context.Context, id string) (*types.LogEntry, error)
	GetAll(ctx context.Context, rng query.Range) ([]*types.LogEntry, error)
	Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.LogEntry, error)
	Count(ctx context.Context) (int, error)
}

// Backend bundles the three journal tables behind one connection.
// Consumers depend on this interface rather than a concrete backend so
// that sqlite, dolt, sharded, and instrumented wrappers interchange.
type Backend interface {
	Participants() ParticipantStore
	Actions() ActionStore
	Logs() LogStore

	// Ping verifies the backend is reachable. Used by health checks.
	Ping(ctx context.Context) error

	Close() error
}
