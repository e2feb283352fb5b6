// Package factory constructs storage backends from configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage"
)

// BackendFactory creates a storage backend from its config section.
type BackendFactory func(ctx context.Context, cfg config.Storage) (storage.Backend, error)

// backendRegistry holds registered backend factories.
var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a storage backend factory under name,
// replacing any previous registration. Called from init functions and
// from tests that stub backends.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Registered returns the registered backend names, sorted.
func Registered() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the backend cfg.Backend names. An empty name falls back
// to sqlite.
func New(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
	name := cfg.Backend
	if name == "" {
		name = config.BackendSQLite
	}
	if factory, ok := backendRegistry[name]; ok {
		return factory(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", name, strings.Join(Registered(), ", "))
}
