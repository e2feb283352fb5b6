package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/agent"
	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/launcher"
	"github.com/agoralabs/agora/internal/logging"
	"github.com/agoralabs/agora/internal/ui"
)

var (
	launchProfiles string
	launchGrace    time.Duration
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start a gateway and a fleet of agents",
	Long: `Start a marketplace gateway plus the agents described by profile
files, then run until the fleet stops or a signal arrives.

Profiles may assign agents to tiers. Primaries run to completion, then
dependents are signalled and get a grace window to finish. Without any
tiers the whole fleet runs as one flat group and the launch ends when
the last agent stops.

A profile is a YAML or JSON object (or list of objects):

  id: alice           # base id; registration allocates alice-0, alice-1, ...
  role: customer      # lands in the directory metadata
  tier: primary       # primary | dependent; omit for a flat fleet
  poll_interval: 1s   # step cadence; omit for the default
  metadata: {city: Berlin}`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLaunch(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	launchCmd.Flags().StringVar(&launchProfiles, "profiles", "", "Agent profile file or directory (YAML or JSON)")
	launchCmd.Flags().DurationVar(&launchGrace, "grace", 0, "How long dependents may keep running after the primaries finish (default 10s)")
	_ = launchCmd.MarkFlagRequired("profiles")
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command) error {
	profiles, err := launcher.LoadProfiles(launchProfiles)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The gateway's request log drowns out agent output; keep it for
	// --verbose runs only.
	gwOut := io.Discard
	if logging.DebugEnabled() {
		gwOut = os.Stderr
	}
	m := launcher.NewMarketplace(cfg, Version, log.New(gwOut, "gateway ", log.LstdFlags))
	if err := m.Start(ctx); err != nil {
		return err
	}

	logging.PrintNormal("%s\n", ui.RenderPass(fmt.Sprintf("%s Marketplace ready at %s", ui.IconPass, m.URL())))

	primaries, dependents, tiered := launcher.SplitTiers(profiles)

	runErr := func() error {
		if tiered {
			logging.PrintNormal("Launching %d agents (%d primary, %d dependent)\n",
				len(profiles), len(primaries), len(dependents))
			group := launcher.NewTieredGroup(
				buildRunners(primaries, m.URL()),
				buildRunners(dependents, m.URL()),
			)
			if launchGrace > 0 {
				group.Grace = launchGrace
			}
			return group.Run(ctx)
		}
		logging.PrintNormal("Launching %d agents\n", len(profiles))
		return launcher.NewGroup(buildRunners(profiles, m.URL())...).Run(ctx)
	}()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	stopErr := m.Stop(stopCtx)

	if runErr != nil {
		return runErr
	}
	if stopErr != nil {
		return stopErr
	}
	logging.PrintNormal("Marketplace stopped.\n")
	return nil
}

// buildRunners turns profiles into standby runners pointed at the
// launched gateway.
func buildRunners(profiles []launcher.Profile, baseURL string) []*agent.Runner {
	runners := make([]*agent.Runner, 0, len(profiles))
	for _, p := range profiles {
		interval, _ := p.Interval() // validated by LoadProfiles
		c, err := client.New(client.Config{BaseURL: baseURL})
		if err != nil {
			// Config is fixed and the URL comes from a bound listener,
			// so this only fires on programming errors.
			fmt.Fprintf(os.Stderr, "Error: client for %s: %v\n", p.ID, err)
			os.Exit(1)
		}
		runners = append(runners, agent.NewRunner(c, &standbyPolicy{role: p.Role}, agent.Config{
			BaseID:       p.ID,
			AllocateID:   true,
			Metadata:     p.RegistrationMetadata(),
			PollInterval: interval,
		}))
	}
	return runners
}

// standbyPolicy keeps a registered participant online without doing any
// work. Launch uses it so operators can bring up a fleet and watch the
// directory and journal fill in; trading policies replace it in code.
type standbyPolicy struct {
	role string
}

func (p *standbyPolicy) OnStarted(ctx context.Context) error {
	if p.role != "" {
		logging.FromContext(ctx).Infof("online role=%s", p.role)
	} else {
		logging.FromContext(ctx).Infof("online")
	}
	return nil
}

func (p *standbyPolicy) Step(ctx context.Context) error { return nil }

func (p *standbyPolicy) OnWillStop(ctx context.Context) {
	logging.FromContext(ctx).Debugf("stopping")
}

func (p *standbyPolicy) OnStopped(ctx context.Context) {}
