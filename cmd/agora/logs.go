package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/timeparsing"
	"github.com/agoralabs/agora/internal/types"
)

var (
	logsLevel  string
	logsAfter  string
	logsBefore string
	logsLimit  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Read the shipped log journal",
	Long: `Read log entries agents shipped to the gateway.

--level filters by minimum severity (debug, info, warning, error).
--after and --before accept compact durations ("-1d", "+6h"), natural
language ("yesterday", "last monday 3pm"), dates (2026-01-15), or
RFC3339 timestamps. --limit keeps the most recent N matches.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLogs(cmd); err != nil {
			fatal(err, "")
		}
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum severity: debug, info, warning, or error")
	logsCmd.Flags().StringVar(&logsAfter, "after", "", "Only entries after this time expression")
	logsCmd.Flags().StringVar(&logsBefore, "before", "", "Only entries before this time expression")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 50, "Keep the most recent N matches (0 for all)")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command) error {
	filter, err := buildLogFilter()
	if err != nil {
		return err
	}

	c, err := newGatewayClient(true)
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := fetchLogs(cmd.Context(), c, filter)
	if err != nil {
		return err
	}
	if logsLimit > 0 && len(entries) > logsLimit {
		entries = entries[len(entries)-logsLimit:]
	}

	if jsonOutput {
		outputJSON(entries)
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No matching log entries.")
		return nil
	}
	for _, e := range entries {
		fmt.Println(formatLogEntry(e))
	}
	return nil
}

type logFilter struct {
	minSeverity int
	after       time.Time
	before      time.Time
}

func buildLogFilter() (*logFilter, error) {
	f := &logFilter{minSeverity: -1}
	if logsLevel != "" {
		sev := types.LogLevel(strings.ToLower(logsLevel)).Severity()
		if sev < 0 {
			return nil, fmt.Errorf("unknown level %q (expected debug, info, warning, or error)", logsLevel)
		}
		f.minSeverity = sev
	}

	now := time.Now()
	if logsAfter != "" {
		t, err := timeparsing.ParseRelativeTime(logsAfter, now)
		if err != nil {
			return nil, fmt.Errorf("--after: %w", err)
		}
		f.after = t
	}
	if logsBefore != "" {
		t, err := timeparsing.ParseRelativeTime(logsBefore, now)
		if err != nil {
			return nil, fmt.Errorf("--before: %w", err)
		}
		f.before = t
	}
	return f, nil
}

func (f *logFilter) match(e *types.LogEntry) bool {
	if f.minSeverity >= 0 && e.Level.Severity() < f.minSeverity {
		return false
	}
	if !f.after.IsZero() && !e.CreatedAt.After(f.after) {
		return false
	}
	if !f.before.IsZero() && !e.CreatedAt.Before(f.before) {
		return false
	}
	return true
}

// fetchLogs pages through the journal in row order. Severity and time
// filters apply client-side; the gateway's list endpoint only windows
// by row.
func fetchLogs(ctx context.Context, c *client.Client, f *logFilter) ([]*types.LogEntry, error) {
	const pageSize = 200
	var out []*types.LogEntry
	offset := 0
	for {
		page, err := c.Logs().List(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Items {
			if f.match(e) {
				out = append(out, e)
			}
		}
		if !page.HasMore || len(page.Items) == 0 {
			return out, nil
		}
		offset += len(page.Items)
	}
}

// formatLogEntry renders one journal row the way agents log locally:
// timestamp, level, logger name, message, then the data payload as
// JSON when present.
func formatLogEntry(e *types.LogEntry) string {
	line := fmt.Sprintf("%s %s %s: %s",
		e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Level, e.Name, e.Message)
	if len(e.Data) > 0 {
		if b, err := json.Marshal(e.Data); err == nil {
			line += " " + string(b)
		}
	}
	return line
}
