// Package agora provides a minimal public API for extending the
// marketplace with custom Go tooling.
//
// Most extensions should talk to a running gateway over its HTTP API.
// This package exports only the essential types and backend
// constructors for Go programs that read or write a marketplace
// database directly.
package agora

import (
	"context"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/llm"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/factory"
	"github.com/agoralabs/agora/internal/storage/sqlite"
	"github.com/agoralabs/agora/internal/types"
)

// Core marketplace types.
type (
	Participant   = types.Participant
	Action        = types.Action
	ActionRequest = types.ActionRequest
	ActionResult  = types.ActionResult
	LogEntry      = types.LogEntry
	LogLevel      = types.LogLevel
)

// Log level constants, lowest to highest severity.
const (
	LogDebug   = types.LogDebug
	LogInfo    = types.LogInfo
	LogWarning = types.LogWarning
	LogError   = types.LogError
)

// Backend is the storage contract behind the gateway: participants,
// actions, and logs over one persistent store.
type Backend = storage.Backend

// StorageConfig selects and parameterizes a backend, mirroring the
// storage section of agora.yaml.
type StorageConfig = config.Storage

// Open opens the sqlite backend at path for programmatic access. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (Backend, error) {
	return sqlite.Open(ctx, path)
}

// OpenFromConfig opens whichever backend cfg names, through the same
// factory the gateway uses.
func OpenFromConfig(ctx context.Context, cfg StorageConfig) (Backend, error) {
	return factory.New(ctx, cfg)
}

// LLMConfig identifies a provider client for agent policy code.
// Policies built outside this module obtain clients here rather than
// constructing SDK clients themselves, so a fleet on the same
// credentials shares one transport.
type LLMConfig = llm.Config

// AnthropicClient returns the process-shared Anthropic client for cfg.
// The marketplace core never calls providers; this is the boundary for
// policy code that does.
var AnthropicClient = llm.Anthropic
