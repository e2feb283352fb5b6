package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/launcher"
	"github.com/agoralabs/agora/internal/logging"
	"github.com/agoralabs/agora/internal/telemetry"
)

const (
	// lowDiskMB is the free-space floor below which the daemon starts
	// warning. Storage writes degrade badly once the disk actually fills.
	lowDiskMB         = 100
	diskCheckInterval = 5 * time.Minute
	stopTimeout       = 15 * time.Second
)

var (
	serveAddr    string
	serveBackend string
	serveDB      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace gateway in the foreground",
	Long: `Run the marketplace gateway until SIGINT or SIGTERM.

Configuration comes from agora.yaml, AGORA_* environment variables, and
the flags below. The config file is watched while serving; log-level
changes apply without a restart, everything else needs one.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "", "Storage backend: sqlite, dolt, or sharded (overrides storage.backend)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Database path (overrides storage.path)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("backend") {
		cfg.Storage.Backend = serveBackend
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.Path = serveDB
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gatewayLog := log.New(os.Stderr, "", log.LstdFlags)
	applyLogLevel(gatewayLog, effectiveLevel(cfg.Log.Level))

	// One agora.yaml switch drives both the process gate and the
	// telemetry package's env gate.
	if cfg.Telemetry.Enabled && os.Getenv("AGORA_OTEL_ENABLED") == "" {
		os.Setenv("AGORA_OTEL_ENABLED", "true")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "agorad", Version); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	m := launcher.NewMarketplace(cfg, Version, gatewayLog)
	if err := m.Start(ctx); err != nil {
		return err
	}

	logging.PrintNormal("Gateway listening at %s (backend: %s)\n", m.URL(), cfg.Storage.Backend)
	logging.PrintNormal("Press Ctrl+C to stop\n")

	go watchDisk(ctx, gatewayLog, storageDiskPath(cfg))

	if err := config.Watch(configPath, func(fresh *config.Config) {
		applyLogLevel(gatewayLog, effectiveLevel(fresh.Log.Level))
	}); err != nil {
		logging.Logf("config watch off: %v\n", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		return err
	}
	logging.PrintNormal("Gateway stopped.\n")
	return nil
}

// effectiveLevel resolves the log level, with --verbose and --quiet
// taking precedence over the config file.
func effectiveLevel(cfgLevel string) string {
	switch {
	case verboseFlag:
		return "debug"
	case quietFlag:
		return "error"
	default:
		return cfgLevel
	}
}

// applyLogLevel maps a config log level onto the process verbosity
// globals and the gateway logger. Levels above info silence the
// request log entirely; log.Logger.SetOutput is safe to call while
// the server is writing, which is what makes live changes possible.
func applyLogLevel(logger *log.Logger, level string) {
	switch strings.ToLower(level) {
	case "debug":
		logging.SetVerbose(true)
		logging.SetQuiet(false)
		logger.SetOutput(os.Stderr)
	case "warning", "warn", "error":
		logging.SetVerbose(false)
		logging.SetQuiet(true)
		logger.SetOutput(io.Discard)
	default:
		logging.SetVerbose(false)
		logging.SetQuiet(false)
		logger.SetOutput(os.Stderr)
	}
}

// storageDiskPath returns the local path whose filesystem backs the
// configured storage, or "" when storage lives in an external server.
func storageDiskPath(cfg *config.Config) string {
	if cfg.Storage.Backend == config.BackendDolt {
		if cfg.Storage.Dolt.Embedded {
			return cfg.Storage.Dolt.DataDir
		}
		return ""
	}
	return cfg.Storage.Path
}

// watchDisk warns when free space under path falls below lowDiskMB.
func watchDisk(ctx context.Context, logger *log.Logger, path string) {
	if path == "" {
		return
	}
	check := func() {
		if mb, ok := checkDiskSpace(path); ok && mb < lowDiskMB {
			logger.Printf("low disk space: %d MB available under %s", mb, path)
		}
	}
	check()

	ticker := time.NewTicker(diskCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}
