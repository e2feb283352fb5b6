package launcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agoralabs/agora/internal/agent"
)

// defaultGrace is how long dependents get between the shutdown signal
// and a hard context cancel.
const defaultGrace = 10 * time.Second

// Group runs a flat set of agents concurrently. The first error
// signals shutdown on every runner and is returned; runners that stop
// because of the signal return nil and never mask the cause.
type Group struct {
	runners []*agent.Runner
}

// NewGroup builds a group over the given runners.
func NewGroup(runners ...*agent.Runner) *Group {
	return &Group{runners: runners}
}

// Add appends a runner. Not safe to call once Run has started.
func (g *Group) Add(r *agent.Runner) {
	g.runners = append(g.runners, r)
}

// Run drives every runner to completion and returns the first error.
func (g *Group) Run(ctx context.Context) error {
	eg, runCtx := errgroup.WithContext(ctx)
	for _, r := range g.runners {
		eg.Go(func() error {
			err := r.Run(runCtx)
			if err != nil {
				g.signalAll()
			}
			return err
		})
	}
	return eg.Wait()
}

func (g *Group) signalAll() {
	for _, r := range g.runners {
		r.Shutdown()
	}
}

// TieredGroup runs primaries and dependents together. Primaries are
// awaited to completion; dependents are then signalled to shut down,
// given a grace window, and hard-cancelled if they are still running
// when it closes. Any agent error signals the whole set immediately.
type TieredGroup struct {
	// Grace bounds how long dependents may keep running after the
	// shutdown signal. Zero means defaultGrace.
	Grace time.Duration

	primaries  []*agent.Runner
	dependents []*agent.Runner
}

// NewTieredGroup builds a tiered group.
func NewTieredGroup(primaries, dependents []*agent.Runner) *TieredGroup {
	return &TieredGroup{primaries: primaries, dependents: dependents}
}

// AddPrimary appends a primary runner. Not safe once Run has started.
func (g *TieredGroup) AddPrimary(r *agent.Runner) {
	g.primaries = append(g.primaries, r)
}

// AddDependent appends a dependent runner. Not safe once Run has
// started.
func (g *TieredGroup) AddDependent(r *agent.Runner) {
	g.dependents = append(g.dependents, r)
}

// Run starts every agent, awaits the primaries, then winds the
// dependents down. The first primary error wins; dependent errors are
// returned only when the primaries were clean.
func (g *TieredGroup) Run(ctx context.Context) error {
	grace := g.Grace
	if grace <= 0 {
		grace = defaultGrace
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var primGrp, depGrp errgroup.Group
	for _, r := range g.primaries {
		primGrp.Go(func() error {
			err := r.Run(runCtx)
			if err != nil {
				g.signalAll()
				cancel()
			}
			return err
		})
	}
	for _, r := range g.dependents {
		depGrp.Go(func() error {
			err := r.Run(runCtx)
			if err != nil {
				g.signalAll()
				cancel()
			}
			return err
		})
	}

	primErr := primGrp.Wait()

	// Primaries are done. Dependents stop at their next loop boundary;
	// the grace window catches the ones stuck inside a step.
	for _, r := range g.dependents {
		r.Shutdown()
	}

	depDone := make(chan error, 1)
	go func() { depDone <- depGrp.Wait() }()

	var depErr error
	select {
	case depErr = <-depDone:
	case <-time.After(grace):
		cancel()
		depErr = <-depDone
	case <-ctx.Done():
		cancel()
		depErr = <-depDone
	}

	if primErr != nil {
		return primErr
	}
	return depErr
}

func (g *TieredGroup) signalAll() {
	for _, r := range g.primaries {
		r.Shutdown()
	}
	for _, r := range g.dependents {
		r.Shutdown()
	}
}
