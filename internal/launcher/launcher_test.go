package launcher

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agoralabs/agora/internal/agent"
	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/logging"
)

func startMarketplace(t *testing.T) *Marketplace {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "market.db")

	m := NewMarketplace(cfg, "test", log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := m.Stop(stopCtx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return m
}

// recorder collects lifecycle events across goroutines so tests can
// assert ordering between agents.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) index(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, got := range r.events {
		if got == e {
			return i
		}
	}
	return -1
}

// policyFuncs adapts plain funcs to the Policy interface; nil fields
// are no-ops.
type policyFuncs struct {
	onStarted  func(context.Context) error
	step       func(context.Context) error
	onWillStop func(context.Context)
	onStopped  func(context.Context)
}

func (p *policyFuncs) OnStarted(ctx context.Context) error {
	if p.onStarted != nil {
		return p.onStarted(ctx)
	}
	return nil
}

func (p *policyFuncs) Step(ctx context.Context) error {
	if p.step != nil {
		return p.step(ctx)
	}
	return nil
}

func (p *policyFuncs) OnWillStop(ctx context.Context) {
	if p.onWillStop != nil {
		p.onWillStop(ctx)
	}
}

func (p *policyFuncs) OnStopped(ctx context.Context) {
	if p.onStopped != nil {
		p.onStopped(ctx)
	}
}

func newAgent(t *testing.T, m *Marketplace, base string, p agent.Policy) *agent.Runner {
	t.Helper()
	c, err := client.New(client.Config{
		BaseURL: m.URL(),
		Timeout: 5 * time.Second,
		Retry: client.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return agent.NewRunner(c, p, agent.Config{
		BaseID:       base,
		AllocateID:   true,
		PollInterval: time.Millisecond,
		ErrorBackoff: time.Millisecond,
		LogOptions:   []logging.Option{logging.WithLocal(log.New(io.Discard, "", 0))},
	})
}

func TestMarketplaceLifecycle(t *testing.T) {
	m := startMarketplace(t)

	if m.URL() == "" {
		t.Fatal("URL() is empty after Start")
	}
	if m.Backend() == nil {
		t.Fatal("Backend() is nil after Start")
	}

	cl, err := client.New(client.Config{BaseURL: m.URL(), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer cl.Close()

	h, err := cl.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "healthy" {
		t.Errorf("status = %q, want healthy", h.Status)
	}

	if _, err := cl.Agents().Register(context.Background(), "probe", nil, false); err != nil {
		t.Errorf("Register() against started marketplace error = %v", err)
	}

	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestMarketplaceStopIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "market.db")
	m := NewMarketplace(cfg, "test", log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := m.Stop(stopCtx)
		stopCancel()
		if err != nil {
			t.Fatalf("Stop() call %d error = %v", i+1, err)
		}
	}
}

func TestGroupRunsAgentsToCompletion(t *testing.T) {
	m := startMarketplace(t)

	grp := NewGroup()
	for i := 0; i < 3; i++ {
		var r *agent.Runner
		p := &policyFuncs{step: func(ctx context.Context) error {
			r.Shutdown()
			return nil
		}}
		r = newAgent(t, m, "shopper", p)
		grp.Add(r)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := grp.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	n, err := m.Backend().Participants().Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("participants = %d, want 3", n)
	}
}

func TestGroupFirstErrorSignalsEveryone(t *testing.T) {
	m := startMarketplace(t)

	failing := newAgent(t, m, "broken", &policyFuncs{
		onStarted: func(ctx context.Context) error { return errors.New("no inventory") },
	})
	// Steps forever; only the group signal ends it.
	bystander := newAgent(t, m, "patient", &policyFuncs{})

	grp := NewGroup(failing, bystander)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := grp.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "start hook") {
		t.Fatalf("Run() error = %v, want the start hook failure", err)
	}
	if !bystander.ShuttingDown() {
		t.Error("bystander was never signalled")
	}
}

func TestTieredGroupStopsDependentsAfterPrimaries(t *testing.T) {
	m := startMarketplace(t)
	rec := &recorder{}

	var primary *agent.Runner
	steps := 0
	primary = newAgent(t, m, "customer", &policyFuncs{
		step: func(ctx context.Context) error {
			steps++
			if steps == 3 {
				primary.Shutdown()
			}
			return nil
		},
		onStopped: func(ctx context.Context) { rec.add("primary_stopped") },
	})

	dependent := newAgent(t, m, "business", &policyFuncs{
		onWillStop: func(ctx context.Context) { rec.add("dependent_will_stop") },
	})

	grp := NewTieredGroup([]*agent.Runner{primary}, []*agent.Runner{dependent})
	grp.Grace = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := grp.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	pi, di := rec.index("primary_stopped"), rec.index("dependent_will_stop")
	if pi == -1 || di == -1 {
		t.Fatalf("missing lifecycle events: %v", rec.events)
	}
	if pi > di {
		t.Errorf("dependent stopped before the primary finished: %v", rec.events)
	}
}

func TestTieredGroupPrimaryErrorSignalsAll(t *testing.T) {
	m := startMarketplace(t)
	rec := &recorder{}

	var primary *agent.Runner
	primary = newAgent(t, m, "customer", &policyFuncs{
		step: func(ctx context.Context) error {
			primary.Shutdown()
			return errors.New("order placement failed")
		},
	})
	dependent := newAgent(t, m, "business", &policyFuncs{
		onStopped: func(ctx context.Context) { rec.add("dependent_stopped") },
	})

	grp := NewTieredGroup([]*agent.Runner{primary}, []*agent.Runner{dependent})
	grp.Grace = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := grp.Run(ctx)
	if !errors.Is(err, agent.ErrStep) {
		t.Fatalf("Run() error = %v, want ErrStep", err)
	}
	if rec.index("dependent_stopped") == -1 {
		t.Error("dependent never tore down after the primary failure")
	}
}

func TestTieredGroupGraceCutsStuckDependents(t *testing.T) {
	m := startMarketplace(t)

	var primary *agent.Runner
	primary = newAgent(t, m, "customer", &policyFuncs{
		step: func(ctx context.Context) error {
			primary.Shutdown()
			return nil
		},
	})
	// Ignores the shutdown flag; only context cancellation reaches it.
	stuck := newAgent(t, m, "stubborn", &policyFuncs{
		step: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	grp := NewTieredGroup([]*agent.Runner{primary}, []*agent.Runner{stuck})
	grp.Grace = 50 * time.Millisecond

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := grp.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("grace window did not cut the stuck dependent loose: took %s", elapsed)
	}
}
