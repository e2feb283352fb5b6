package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/logging"
)

var (
	configPath  string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "agorad",
	Short: "agorad - Agora marketplace gateway",
	Long: `The marketplace gateway daemon. It owns the participant directory and
the action journal, serves the HTTP API agents speak, and persists
everything through the configured storage backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Handle --version flag on root command
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("agorad version %s (%s)\n", Version, Build)
			return
		}
		// No subcommand - show help
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyVerbosityFlags()
	},
}

// applyVerbosityFlags maps --verbose and --quiet onto the logging
// package globals before any command runs.
func applyVerbosityFlags() {
	if verboseFlag {
		logging.SetVerbose(true)
	}
	if quietFlag {
		logging.SetQuiet(true)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./agora.yaml, then AGORA_* env)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// Add --version flag to root command (same behavior as version subcommand)
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
