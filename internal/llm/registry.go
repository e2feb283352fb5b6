// Package llm hands out shared provider clients to agent policies.
//
// Policy code never constructs SDK clients directly: it asks the
// registry, which keeps one client per distinct configuration so a
// fleet of agents on the same credentials shares transport state.
// The marketplace core never calls providers.
package llm

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrAPIKeyRequired is returned when neither the config nor the
// environment carries a provider key.
var ErrAPIKeyRequired = errors.New("API key required")

const (
	// ProviderAnthropic is the only provider the registry knows today.
	ProviderAnthropic = "anthropic"

	// DefaultModel is used when a config names no model.
	DefaultModel = "claude-3-5-haiku-20241022"

	envAPIKey = "ANTHROPIC_API_KEY"
)

// Config identifies one provider client. Configs that normalize to
// the same provider, model, and key share a cached client.
type Config struct {
	Provider string // defaults to ProviderAnthropic
	Model    string // defaults to DefaultModel
	APIKey   string // ANTHROPIC_API_KEY wins when set
}

// normalize fills defaults and resolves the key, yielding the
// registry key for this config.
func (c Config) normalize() (Config, error) {
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.Provider != ProviderAnthropic {
		return Config{}, fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if env := os.Getenv(envAPIKey); env != "" {
		c.APIKey = env
	}
	if c.APIKey == "" {
		return Config{}, fmt.Errorf("%w: set %s or provide one in the agent profile", ErrAPIKeyRequired, envAPIKey)
	}
	return c, nil
}

var (
	regMu   sync.Mutex
	clients = make(map[Config]anthropic.Client)
)

// newClient is a hook for tests that count construction.
var newClient = func(apiKey string) anthropic.Client {
	return anthropic.NewClient(option.WithAPIKey(apiKey))
}

// Anthropic returns the shared client for cfg, building it on first
// use. A rotated environment key resolves to a new registry entry, so
// the stale client simply stops being handed out.
func Anthropic(cfg Config) (anthropic.Client, error) {
	key, err := cfg.normalize()
	if err != nil {
		return anthropic.Client{}, err
	}

	regMu.Lock()
	defer regMu.Unlock()

	if c, ok := clients[key]; ok {
		return c, nil
	}
	c := newClient(key.APIKey)
	clients[key] = c
	return c, nil
}
