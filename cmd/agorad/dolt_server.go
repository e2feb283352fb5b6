package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/storage/dolt"
	"github.com/agoralabs/agora/internal/ui"
)

var (
	doltDataDir string
	doltHost    string
	doltPort    int
	doltLogFile string
)

var doltServerCmd = &cobra.Command{
	Use:   "dolt-server",
	Short: "Manage the dolt sql-server behind the dolt backend",
	Long: `Manage the dolt sql-server the dolt storage backend connects to.

The server runs as a background process and persists after agorad
exits. Connection settings default to the storage.dolt section of the
config file; flags override per invocation.

Commands:
  agorad dolt-server start    Start a dolt sql-server
  agorad dolt-server stop     Stop the running dolt sql-server
  agorad dolt-server status   Show whether a server is running`,
}

var doltServerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a dolt sql-server as a background process",
	Long: `Start a dolt sql-server as a background process.

The server keeps running after agorad exits. Its PID lands in
<data-dir>/sql-server.pid and its output in the log file.`,
	Run: func(cmd *cobra.Command, args []string) {
		startDoltServer(cmd)
	},
}

var doltServerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dolt sql-server",
	Long: `Stop the dolt sql-server started by 'agorad dolt-server start'.

Sends a graceful shutdown signal (SIGTERM). If the server doesn't stop
within 10 seconds, it is forcefully terminated.`,
	Run: func(cmd *cobra.Command, args []string) {
		stopDoltServer()
	},
}

var doltServerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a dolt sql-server is running",
	Run: func(cmd *cobra.Command, args []string) {
		showDoltServerStatus()
	},
}

func init() {
	doltServerCmd.PersistentFlags().StringVar(&doltDataDir, "data-dir", "", "Dolt data directory (overrides storage.dolt.data_dir)")
	doltServerCmd.PersistentFlags().StringVar(&doltHost, "host", "", "Listen host (overrides storage.dolt.host)")
	doltServerCmd.PersistentFlags().IntVar(&doltPort, "port", 0, "Listen port (overrides storage.dolt.port)")
	doltServerCmd.PersistentFlags().StringVar(&doltLogFile, "log-file", "", "Server log file (default: <data-dir>/sql-server.log)")

	doltServerCmd.AddCommand(doltServerStartCmd)
	doltServerCmd.AddCommand(doltServerStopCmd)
	doltServerCmd.AddCommand(doltServerStatusCmd)
	rootCmd.AddCommand(doltServerCmd)
}

// resolveDoltServerConfig layers flags over the storage.dolt section.
func resolveDoltServerConfig() (*dolt.ServerConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	sc := dolt.DefaultServerConfig(cfg.Storage.Dolt.DataDir)
	if cfg.Storage.Dolt.Host != "" {
		sc.Host = cfg.Storage.Dolt.Host
	}
	if cfg.Storage.Dolt.Port != 0 {
		sc.Port = cfg.Storage.Dolt.Port
	}
	if doltDataDir != "" {
		sc.DataDir = doltDataDir
	}
	if doltHost != "" {
		sc.Host = doltHost
	}
	if doltPort != 0 {
		sc.Port = doltPort
	}
	if doltLogFile != "" {
		sc.LogFile = doltLogFile
	}
	if sc.DataDir == "" {
		return nil, fmt.Errorf("data directory required (set --data-dir or storage.dolt.data_dir)")
	}
	return sc, nil
}

func startDoltServer(cmd *cobra.Command) {
	sc, err := resolveDoltServerConfig()
	if err != nil {
		if jsonOutput {
			outputJSONError(err, "config")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if dolt.IsServerRunning(sc.Host, sc.Port) {
		if jsonOutput {
			outputJSONError(fmt.Errorf("server already running on %s:%d", sc.Host, sc.Port), "server_already_running")
		}
		fmt.Fprintf(os.Stderr, "Error: dolt sql-server already running on %s:%d\n", sc.Host, sc.Port)
		fmt.Fprintf(os.Stderr, "Stop it first: agorad dolt-server stop\n")
		os.Exit(1)
	}

	if !jsonOutput {
		fmt.Println("Starting dolt sql-server...")
		fmt.Printf("  Host:     %s\n", sc.Host)
		fmt.Printf("  Port:     %d\n", sc.Port)
		fmt.Printf("  Data dir: %s\n", sc.DataDir)
		fmt.Println()
		fmt.Println("Waiting for server to accept connections...")
	}

	pid, err := dolt.StartServer(cmd.Context(), sc)
	if err != nil {
		if jsonOutput {
			outputJSONError(err, "start_failed")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"status":   "started",
			"pid":      pid,
			"host":     sc.Host,
			"port":     sc.Port,
			"data_dir": sc.DataDir,
		})
		return
	}

	fmt.Printf("%s\n", ui.RenderPass(fmt.Sprintf("%s Server started (PID %d)", ui.IconPass, pid)))
	fmt.Println()
	fmt.Println("To stop the server:")
	fmt.Println("  agorad dolt-server stop")
}

func stopDoltServer() {
	sc, err := resolveDoltServerConfig()
	if err != nil {
		if jsonOutput {
			outputJSONError(err, "config")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	status, _ := dolt.GetServerStatus(sc.DataDir, sc.Host, sc.Port)
	if status.PID == 0 && !status.Running {
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"status":  "not_running",
				"message": "no dolt sql-server is running",
			})
			return
		}
		fmt.Println("No dolt sql-server is running.")
		return
	}

	if !jsonOutput && status.PID > 0 {
		fmt.Printf("Stopping dolt sql-server (PID %d)...\n", status.PID)
	}

	if err := dolt.StopServer(sc.DataDir); err != nil {
		if jsonOutput {
			outputJSONError(err, "stop_failed")
		}
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"status": "stopped",
			"pid":    status.PID,
		})
		return
	}

	fmt.Printf("%s\n", ui.RenderPass(ui.IconPass+" Server stopped"))
}

func showDoltServerStatus() {
	sc, err := resolveDoltServerConfig()
	if err != nil {
		if jsonOutput {
			outputJSONError(err, "config")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	status, err := dolt.GetServerStatus(sc.DataDir, sc.Host, sc.Port)
	if err != nil {
		if jsonOutput {
			outputJSONError(err, "status_failed")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		outputJSON(map[string]interface{}{
			"running": status.Running,
			"pid":     status.PID,
			"host":    status.Host,
			"port":    status.Port,
		})
		return
	}

	if status.Running {
		fmt.Printf("%s\n", ui.RenderPass(fmt.Sprintf("%s Server running on %s:%d", ui.IconPass, status.Host, status.Port)))
		if status.PID > 0 {
			fmt.Printf("  PID: %d\n", status.PID)
		}
		return
	}
	fmt.Println("No dolt sql-server is running.")
	if status.PID > 0 {
		fmt.Printf("%s\n", ui.RenderWarn(fmt.Sprintf("%s Stale PID file present (PID %d)", ui.IconWarn, status.PID)))
	}
}
