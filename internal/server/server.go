// Package server is the HTTP gateway. It exposes registration, action
// execution, log shipping, and the listing endpoints over JSON, binds
// bearer tokens to participant rows, and maps storage and dispatcher
// errors onto transport statuses.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agoralabs/agora/internal/auth"
	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/telemetry"
)

const serverScopeName = "github.com/agoralabs/agora/server"

// Server is the gateway process: one storage backend, one protocol
// registry, one listener.
type Server struct {
	cfg      *config.Config
	backend  storage.Backend
	registry *protocol.Registry

	dispatcher *protocol.Dispatcher
	auth       *auth.Authenticator
	alloc      *auth.Allocator

	version   string
	startTime time.Time
	logger    *log.Logger

	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
	mu         sync.RWMutex

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// New wires a Server over the backend and registry. A nil logger falls
// back to log.Default().
func New(cfg *config.Config, be storage.Backend, registry *protocol.Registry, version string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	m := telemetry.Meter(serverScopeName)
	requests, _ := m.Int64Counter("agora.http.requests",
		metric.WithDescription("Total HTTP requests served"),
	)
	latency, _ := m.Float64Histogram("agora.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Server{
		cfg:        cfg,
		backend:    be,
		registry:   registry,
		dispatcher: protocol.NewDispatcher(registry, be),
		auth:       auth.NewAuthenticator(be.Participants()),
		alloc:      auth.NewAllocator(be.Participants()),
		version:    version,
		startTime:  time.Now(),
		logger:     logger,
		ready:      make(chan struct{}),
		requests:   requests,
		latency:    latency,
	}
}

// Start binds the listener and serves until ctx is cancelled, then
// drains in-flight requests for up to five seconds. A clean shutdown
// returns nil.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// No auth: agents have no token before registering, and health is
	// probed by launchers and load balancers.
	mux.HandleFunc("/health", s.route("health", s.handleHealth))
	mux.HandleFunc("/agents/register", s.route("agents.register", s.handleRegister))

	mux.HandleFunc("/agents", s.route("agents.list", s.authed(s.handleAgentList)))
	mux.HandleFunc("/agents/", s.route("agents.get", s.authed(s.handleAgentGet)))
	mux.HandleFunc("/actions/execute", s.route("actions.execute", s.authed(s.handleExecute)))
	mux.HandleFunc("/actions/protocol", s.route("actions.protocol", s.authed(s.handleProtocol)))
	mux.HandleFunc("/logs/create", s.route("logs.create", s.authed(s.handleLogCreate)))
	mux.HandleFunc("/logs", s.route("logs.list", s.authed(s.handleLogList)))

	handler := http.Handler(mux)
	if s.cfg.Server.MaxConns > 0 {
		handler = capConcurrency(handler, s.cfg.Server.MaxConns)
	}

	timeout := s.cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Unlock()
	close(s.ready)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("gateway listening on %s (backend=%s)", listener.Addr(), s.cfg.Storage.Backend)
	if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the address the gateway is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Server.Addr
}

// WaitReady blocks until the listener is bound or ctx ends. Callers
// that run Start on its own goroutine use this before issuing requests.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// route wraps a handler with the request log line and per-route
// counter and latency metrics.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)

		elapsed := time.Since(start)
		s.logger.Printf("%s %s %d %s", r.Method, r.URL.Path, sw.status, elapsed.Round(time.Millisecond))

		attrs := metric.WithAttributes(
			attribute.String("http.route", name),
			attribute.String("http.method", r.Method),
			attribute.Int("http.status_code", sw.status),
		)
		s.requests.Add(r.Context(), 1, attrs)
		s.latency.Record(r.Context(), float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

// statusWriter captures the status code a handler wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// capConcurrency bounds in-flight requests with a non-blocking slot
// acquire. Requests beyond the cap are rejected immediately with 429
// rather than queued; the client's retry loop absorbs the backpressure.
func capConcurrency(next http.Handler, maxConns int) http.Handler {
	slots := make(chan struct{}, maxConns)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusTooManyRequests, "server at capacity")
		}
	})
}
