package dolt

// Server lifecycle management for dolt sql-server. The gateway daemon can
// start and stop a local server so operators do not have to manage the
// process themselves.

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds configuration for a managed dolt sql-server.
type ServerConfig struct {
	DataDir  string // directory containing Dolt databases
	Host     string // listen host (default: 127.0.0.1)
	Port     int    // listen port (default: 3306)
	LogLevel string // trace, debug, info, warn, error (default: info)
	LogFile  string // log file path (default: DataDir/sql-server.log)
}

// DefaultServerConfig returns server config with default values.
func DefaultServerConfig(dataDir string) *ServerConfig {
	return &ServerConfig{
		DataDir:  dataDir,
		Host:     "127.0.0.1",
		Port:     DefaultSQLPort,
		LogLevel: "info",
	}
}

// ServerStatus describes a dolt sql-server process.
type ServerStatus struct {
	Running bool
	PID     int
	Host    string
	Port    int
}

// StartServer starts a dolt sql-server in the background and returns its
// PID. The server is detached from the caller's process group so it
// survives the caller's exit; its PID lands in DataDir/sql-server.pid.
func StartServer(ctx context.Context, cfg *ServerConfig) (int, error) {
	if cfg.DataDir == "" {
		return 0, fmt.Errorf("data directory is required")
	}
	if IsServerRunning(cfg.Host, cfg.Port) {
		return 0, fmt.Errorf("server already running on %s:%d", cfg.Host, cfg.Port)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create data directory: %w", err)
	}

	args := []string{
		"sql-server",
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
		"--data-dir", cfg.DataDir,
	}
	if cfg.LogLevel != "" {
		args = append(args, "--loglevel", cfg.LogLevel)
	}

	cmd := exec.CommandContext(ctx, "dolt", args...)
	cmd.Dir = cfg.DataDir

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfg.DataDir, "sql-server.log")
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return 0, fmt.Errorf("failed to start dolt sql-server: %w", err)
	}

	pid := cmd.Process.Pid

	pidFile := filepath.Join(cfg.DataDir, "sql-server.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o640); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write PID file: %v\n", err)
	}

	// Reap the process when it exits and clean up its PID file.
	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
		_ = os.Remove(pidFile)
	}()

	if err := waitForServer(cfg.Host, cfg.Port, 30*time.Second); err != nil {
		_ = cmd.Process.Kill()
		if logContent, readErr := os.ReadFile(logPath); readErr == nil {
			return 0, fmt.Errorf("server failed to start: %w\nserver log:\n%s", err, string(logContent))
		}
		return 0, fmt.Errorf("server failed to start: %w", err)
	}

	return pid, nil
}

// StopServer stops the dolt sql-server recorded in DataDir's PID file,
// escalating from SIGTERM to SIGKILL after ten seconds.
func StopServer(dataDir string) error {
	pidFile := filepath.Join(dataDir, "sql-server.pid")

	pidBytes, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PID file found, server may not be running")
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(termSignal()); err != nil {
		// Process may already be gone.
		_ = os.Remove(pidFile)
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := process.Wait()
		done <- err
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = process.Kill()
		<-done
	}

	_ = os.Remove(pidFile)
	return nil
}

// GetServerStatus reports whether a server answers on host:port and the
// PID recorded in the data directory, if any.
func GetServerStatus(dataDir string, host string, port int) (*ServerStatus, error) {
	status := &ServerStatus{
		Host:    host,
		Port:    port,
		Running: IsServerRunning(host, port),
	}

	pidFile := filepath.Join(dataDir, "sql-server.pid")
	if pidBytes, err := os.ReadFile(pidFile); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidBytes))); err == nil {
			status.PID = pid
		}
	}

	return status, nil
}

// IsServerRunning checks whether anything accepts TCP connections on
// host:port.
func IsServerRunning(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// waitForServer polls until the server accepts connections or the timeout
// expires.
func waitForServer(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if IsServerRunning(host, port) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for server on %s:%d", host, port)
}

// EnsureServerRunning starts the server if nothing answers on its port.
func EnsureServerRunning(ctx context.Context, cfg *ServerConfig) error {
	if IsServerRunning(cfg.Host, cfg.Port) {
		return nil
	}
	_, err := StartServer(ctx, cfg)
	return err
}
