package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway health",
	Long: `Probe the gateway's health endpoint.

With a token (--token or AGORA_TOKEN) the participant count is shown
too; without one only the open health data appears. Exits 1 when the
gateway is unreachable or unhealthy.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStatus(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command) {
	c, err := newGatewayClient(false)
	if err != nil {
		fatal(err, "")
	}
	defer c.Close()

	h, err := c.Health(cmd.Context())
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
			if jsonOutput {
				outputJSONError(err, "unhealthy")
			}
			fmt.Printf("%s\n", ui.RenderFail(fmt.Sprintf("%s Gateway unhealthy at %s", ui.IconFail, c.BaseURL())))
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fatal(fmt.Errorf("gateway unreachable at %s: %w", c.BaseURL(), err), "unreachable")
	}

	// The participant count needs a token; skip it quietly without one.
	agentTotal := -1
	if resolveToken() != "" {
		if page, err := c.Agents().List(cmd.Context(), 0, 1); err == nil {
			agentTotal = page.Total
		}
	}

	if jsonOutput {
		out := map[string]interface{}{
			"status":         h.Status,
			"version":        h.Version,
			"uptime_seconds": h.UptimeSeconds,
			"backend":        h.Backend,
			"url":            c.BaseURL(),
		}
		if agentTotal >= 0 {
			out["agents"] = agentTotal
		}
		outputJSON(out)
		return
	}

	fmt.Printf("%s\n", ui.RenderPass(fmt.Sprintf("%s Gateway healthy at %s", ui.IconPass, c.BaseURL())))
	fmt.Printf("  Version:  %s\n", h.Version)
	fmt.Printf("  Backend:  %s\n", h.Backend)
	fmt.Printf("  Uptime:   %s\n", formatUptime(h.UptimeSeconds))
	if agentTotal >= 0 {
		fmt.Printf("  Agents:   %d\n", agentTotal)
	}
}

func formatUptime(seconds float64) string {
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}
