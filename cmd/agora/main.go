package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/client"
	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/logging"
)

var (
	configPath  string
	gatewayURL  string
	tokenFlag   string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "agora - marketplace operator CLI",
	Long: `Operator CLI for the Agora marketplace. Launch a gateway with a fleet
of agents, inspect the participant directory, and read the shipped
action journal.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Handle --version flag on root command
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("agora version %s (%s)\n", Version, Build)
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
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "url", "", "Gateway base URL (default: $AGORA_URL, then http://<server.addr> from config)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Bearer token for directory and journal queries (default: $AGORA_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	// Add --version flag to root command (same behavior as version subcommand)
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

// resolveURL picks the gateway address: --url, then AGORA_URL, then the
// listen address from the config file.
func resolveURL() (string, error) {
	if gatewayURL != "" {
		return gatewayURL, nil
	}
	if env := os.Getenv("AGORA_URL"); env != "" {
		return env, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Server.Addr, nil
}

func resolveToken() string {
	if tokenFlag != "" {
		return tokenFlag
	}
	return os.Getenv("AGORA_TOKEN")
}

// newGatewayClient builds a client for operator queries against a
// running gateway. Directory and journal endpoints only answer to a
// registered identity, so commands that hit them pass requireToken and
// fail before the request instead of with a 401.
func newGatewayClient(requireToken bool) (*client.Client, error) {
	baseURL, err := resolveURL()
	if err != nil {
		return nil, err
	}
	token := resolveToken()
	if requireToken && token == "" {
		return nil, fmt.Errorf("a bearer token is required (pass --token or set AGORA_TOKEN; 'agora register' issues one)")
	}
	c, err := client.New(client.Config{BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	if token != "" {
		c.SetToken(token)
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
