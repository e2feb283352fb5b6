// Package launcher boots marketplaces and agent groups and owns their
// shutdown order.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/marketplace"
	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/server"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/factory"
	"github.com/agoralabs/agora/internal/telemetry"
)

const probeTimeout = 30 * time.Second

// newProbeBackoff returns the schedule for health probing a gateway
// that is still coming up. BackOff implementations are stateful; always
// return a fresh instance.
func newProbeBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = probeTimeout
	return bo
}

// Marketplace runs a gateway plus its storage backend as one unit.
// Start returns once the gateway answers health probes, so callers can
// point agents at URL() immediately; Stop drains the server and closes
// the backend.
type Marketplace struct {
	cfg     *config.Config
	version string
	logger  *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	url     string
	backend storage.Backend
	server  *server.Server
	cancel  context.CancelFunc
	done    chan error
}

// NewMarketplace builds an unstarted marketplace. A nil logger falls
// back to log.Default().
func NewMarketplace(cfg *config.Config, version string, logger *log.Logger) *Marketplace {
	if logger == nil {
		logger = log.Default()
	}
	return &Marketplace{cfg: cfg, version: version, logger: logger}
}

// URL returns the gateway base URL. Empty before Start succeeds.
func (m *Marketplace) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// Backend returns the storage backend, for seeding and inspection. Nil
// before Start succeeds.
func (m *Marketplace) Backend() storage.Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

// Start builds the backend, boots the gateway, and blocks until a
// health probe reports healthy or ctx expires. On failure everything
// already started is torn back down.
func (m *Marketplace) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("marketplace already started")
	}
	m.started = true
	m.mu.Unlock()

	be, err := factory.New(ctx, m.cfg.Storage)
	if err != nil {
		return fmt.Errorf("building %s backend: %w", m.cfg.Storage.Backend, err)
	}
	be = telemetry.WrapBackend(be)

	registry := protocol.NewRegistry()
	if err := registry.Register(marketplace.New()); err != nil {
		_ = be.Close()
		return fmt.Errorf("registering marketplace protocol: %w", err)
	}

	srv := server.New(m.cfg, be, registry, m.version, m.logger)

	// The server outlives Start's ctx; only Stop ends it.
	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Start(serveCtx)
	}()

	if err := srv.WaitReady(ctx); err != nil {
		cancel()
		<-done
		_ = be.Close()
		return fmt.Errorf("waiting for gateway listener: %w", err)
	}
	select {
	case err := <-done:
		// Serve never got going; the listen error is in hand.
		cancel()
		_ = be.Close()
		return fmt.Errorf("starting gateway: %w", err)
	default:
	}

	url := "http://" + srv.Addr()

	m.mu.Lock()
	m.url = url
	m.backend = be
	m.server = srv
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	if err := m.probe(ctx, url); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer stopCancel()
		_ = m.Stop(stopCtx)
		return fmt.Errorf("marketplace never became healthy: %w", err)
	}

	m.logger.Printf("marketplace ready at %s", url)
	return nil
}

// probe polls /health until the gateway reports healthy.
func (m *Marketplace) probe(ctx context.Context, url string) error {
	cl, err := client.New(client.Config{
		BaseURL: url,
		Timeout: 5 * time.Second,
		Retry:   client.RetryPolicy{MaxAttempts: 1},
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	op := func() error {
		h, err := cl.Health(ctx)
		if err != nil {
			return err
		}
		if h.Status != "healthy" {
			return fmt.Errorf("gateway is %s: %s", h.Status, h.Error)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(newProbeBackoff(), ctx))
}

// Stop shuts the gateway down, waits for the serve loop to exit, and
// closes the backend. Safe to call more than once.
func (m *Marketplace) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started || m.stopped || m.cancel == nil {
		m.stopped = true
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	cancel := m.cancel
	done := m.done
	be := m.backend
	m.mu.Unlock()

	cancel()

	var errs []error
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for gateway shutdown: %w", ctx.Err()))
	}
	if err := be.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing backend: %w", err))
	}
	return errors.Join(errs...)
}
