package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	agentsOffset int
	agentsLimit  int
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the participant directory",
	Long: `Inspect the gateway's participant directory.

Commands:
  agora agents list       List registered participants
  agora agents show <id>  Show one participant's row`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered participants",
	Run: func(cmd *cobra.Command, args []string) {
		runAgentsList(cmd)
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one participant",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAgentsShow(cmd, args[0])
	},
}

func init() {
	agentsListCmd.Flags().IntVar(&agentsOffset, "offset", 0, "Skip the first N participants")
	agentsListCmd.Flags().IntVar(&agentsLimit, "limit", 50, "Return at most N participants")

	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgentsList(cmd *cobra.Command) {
	c, err := newGatewayClient(true)
	if err != nil {
		fatal(err, "")
	}
	defer c.Close()

	page, err := c.Agents().List(cmd.Context(), agentsOffset, agentsLimit)
	if err != nil {
		fatal(err, "list_failed")
	}

	if jsonOutput {
		outputJSON(page)
		return
	}

	if len(page.Items) == 0 {
		fmt.Println("No participants registered.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tCREATED")
	for _, a := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			a.ID,
			metaString(a.Metadata, "role"),
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	if page.HasMore {
		next := page.Offset + len(page.Items)
		fmt.Printf("\nShowing %d-%d of %d (use --offset %d for more)\n",
			page.Offset+1, next, page.Total, next)
	}
}

func runAgentsShow(cmd *cobra.Command, id string) {
	c, err := newGatewayClient(true)
	if err != nil {
		fatal(err, "")
	}
	defer c.Close()

	a, err := c.Agents().Get(cmd.Context(), id)
	if err != nil {
		fatal(err, "show_failed")
	}

	if jsonOutput {
		outputJSON(a)
		return
	}

	fmt.Printf("ID:       %s\n", a.ID)
	fmt.Printf("Created:  %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if len(a.Metadata) > 0 {
		fmt.Println("Metadata:")
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, a.Metadata[k])
		}
	}
}

// metaString extracts a string-valued metadata key, or "".
func metaString(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}
