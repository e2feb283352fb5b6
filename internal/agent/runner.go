// Package agent runs one marketplace participant as a long-lived
// cooperative task: register, drive the policy's step loop until told
// to stop, then tear down in a fixed order.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/logging"
)

// ErrStep marks a step failure that ended a run. Step errors observed
// while shutdown is in progress stop the loop instead of backing off,
// and Run wraps them with ErrStep so callers can tell a failed final
// step from a clean stop.
var ErrStep = errors.New("agent step failed")

// Policy is the behavior a participant runs. The runtime owns the
// loop; the policy owns only the body. Every hook receives a context
// carrying the agent's Logger, reachable via logging.FromContext.
type Policy interface {
	// OnStarted runs once after successful registration. An error
	// aborts the run before the first step.
	OnStarted(ctx context.Context) error
	// Step is one loop iteration. An error is logged and the loop
	// continues after ErrorBackoff, unless shutdown is in progress.
	Step(ctx context.Context) error
	// OnWillStop runs after the loop exits, before OnStopped.
	OnWillStop(ctx context.Context)
	// OnStopped runs last, before the logger flushes and the client
	// closes.
	OnStopped(ctx context.Context)
}

const (
	defaultPollInterval = time.Second
	defaultErrorBackoff = 2 * time.Second

	// teardownTimeout bounds the stop hooks and the final log flush
	// once the run context is already dead.
	teardownTimeout = 10 * time.Second
)

// Config describes the participant a Runner registers.
type Config struct {
	// BaseID is the id submitted at registration, or the base when
	// AllocateID is set.
	BaseID string
	// AllocateID asks the gateway for the smallest unused BaseID-N
	// instead of the exact id.
	AllocateID bool
	// Metadata is the profile stored on the participant row.
	Metadata map[string]any
	// PollInterval separates loop iterations. Default one second.
	PollInterval time.Duration
	// ErrorBackoff separates a failed step from the next attempt.
	// Default two seconds.
	ErrorBackoff time.Duration
	// LogOptions apply to the Logger built after registration.
	LogOptions []logging.Option
}

// Runner drives one participant through the full lifecycle. Run owns
// the client's end of life: it is closed on every exit path, including
// registration failure.
type Runner struct {
	client *client.Client
	policy Policy
	cfg    Config

	mu     sync.Mutex
	logger *logging.Logger

	shutdown     atomic.Bool
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewRunner builds a Runner over an unregistered client.
func NewRunner(c *client.Client, policy Policy, cfg Config) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	return &Runner{
		client:     c,
		policy:     policy,
		cfg:        cfg,
		shutdownCh: make(chan struct{}),
	}
}

// Shutdown asks the loop to stop. The flag is observed at the next
// loop boundary; sleeps wake early. Safe from any goroutine, any
// number of times.
func (r *Runner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.shutdown.Store(true)
		close(r.shutdownCh)
	})
}

// ShuttingDown reports whether Shutdown has been called.
func (r *Runner) ShuttingDown() bool { return r.shutdown.Load() }

// Client returns the gateway client the runner registered with.
func (r *Runner) Client() *client.Client { return r.client }

// Logger returns the agent's logger. Nil until registration succeeds.
func (r *Runner) Logger() *logging.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// Run registers the participant and drives the policy until Shutdown,
// context cancellation, or a step failure during shutdown. Teardown is
// the same on every path after registration: OnWillStop, OnStopped,
// flush the logger, close the client. Context cancellation is a clean
// stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	row, err := r.client.Agents().Register(ctx, r.cfg.BaseID, r.cfg.Metadata, r.cfg.AllocateID)
	if err != nil {
		r.client.Close()
		return fmt.Errorf("registering %q: %w", r.cfg.BaseID, err)
	}

	logger := logging.New(row.ID, r.client.Logs(), r.cfg.LogOptions...)
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()

	ctx = logging.NewContext(ctx, logger)
	logger.Infof("registered as %s", row.ID)

	var runErr error
	if err := r.policy.OnStarted(ctx); err != nil {
		logger.Errorf("start hook: %v", err)
		runErr = fmt.Errorf("start hook: %w", err)
	} else {
		runErr = r.loop(ctx, logger)
	}

	// The run context may already be dead here; the stop hooks and the
	// final flush still need a working one.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	r.policy.OnWillStop(stopCtx)
	r.policy.OnStopped(stopCtx)
	logger.Infof("stopped")
	if err := logger.Flush(stopCtx); err != nil {
		logger.Warningf("final flush: %v", err)
	}
	logger.Close()
	r.client.Close()
	return runErr
}

func (r *Runner) loop(ctx context.Context, logger *logging.Logger) error {
	for {
		if r.shutdown.Load() || ctx.Err() != nil {
			return nil
		}

		if err := r.policy.Step(ctx); err != nil {
			if ctx.Err() != nil {
				// Cancellation unwound through the step.
				return nil
			}
			logger.Errorf("step: %v", err)
			if r.shutdown.Load() {
				return errors.Join(ErrStep, err)
			}
			if !r.sleep(ctx, r.cfg.ErrorBackoff) {
				return nil
			}
			continue
		}

		if !r.sleep(ctx, r.cfg.PollInterval) {
			return nil
		}
	}
}

// sleep waits d and reports whether the loop should keep going. A
// shutdown signal cuts the wait short and sends the loop back to its
// boundary check.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.shutdownCh:
		return true
	case <-ctx.Done():
		return false
	}
}
