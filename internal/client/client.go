// Package client is the Go client for the agora gateway. A Client
// bundles a base URL, a bearer credential, and a retry policy; clients
// built from the same configuration share one connection pool by
// reference count.
//
// Retry policy: 429 responses, connection-level failures, and timeouts
// are retried with jittered exponential backoff; every other failure is
// permanent. The server never retries, so this is the only retry loop
// in the system.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Responses larger than this are treated as malformed.
const maxResponseBytes = 32 * 1024 * 1024

// RetryPolicy controls how failed requests are retried.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of tries, first attempt
	// included. Values below two disable retries.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// Jitter is the symmetric randomization fraction applied to each
	// delay, 0 for a fixed schedule.
	Jitter float64
}

// DefaultRetryPolicy matches the gateway's backpressure: a handful of
// attempts with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Jitter:         0.5,
	}
}

// Config configures a Client. A zero Retry gets DefaultRetryPolicy.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   RetryPolicy
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// poolKey identifies a shareable transport: same base URL, same
// timeout, same retry identity.
type poolKey struct {
	baseURL string
	timeout time.Duration
	retry   RetryPolicy
}

type sharedTransport struct {
	httpClient *http.Client
	refs       int
}

var (
	poolMu sync.Mutex
	pools  = map[poolKey]*sharedTransport{}
)

func acquireTransport(key poolKey) *http.Client {
	poolMu.Lock()
	defer poolMu.Unlock()
	st, ok := pools[key]
	if !ok {
		st = &sharedTransport{httpClient: &http.Client{Timeout: key.timeout}}
		pools[key] = st
	}
	st.refs++
	return st.httpClient
}

func releaseTransport(key poolKey) {
	poolMu.Lock()
	defer poolMu.Unlock()
	st, ok := pools[key]
	if !ok {
		return
	}
	st.refs--
	if st.refs <= 0 {
		st.httpClient.CloseIdleConnections()
		delete(pools, key)
	}
}

// Client talks to one gateway. Safe for concurrent use.
type Client struct {
	cfg        Config
	key        poolKey
	httpClient *http.Client

	mu      sync.RWMutex
	token   string
	agentID string

	closeOnce sync.Once
}

// New returns a Client for cfg, joining the shared connection pool for
// that configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client base URL is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	cfg.BaseURL = baseURL

	key := poolKey{baseURL: baseURL, timeout: cfg.Timeout, retry: cfg.Retry}
	return &Client{
		cfg:        cfg,
		key:        key,
		httpClient: acquireTransport(key),
	}, nil
}

// Close releases this client's reference on the shared pool. The last
// reference closes idle connections. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { releaseTransport(c.key) })
}

// SetToken fixes the bearer credential sent on every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer credential, empty before
// registration.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetAgentID records the identity the token was issued to. The gateway
// may hand back a different id than the one submitted, so callers fix
// the returned one here.
func (c *Client) SetAgentID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = id
}

// AgentID returns the registered identity, empty before registration.
func (c *Client) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

// BaseURL returns the normalized gateway address.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Health probes the gateway's health endpoint. A 503 surfaces as an
// *APIError, not a retry.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Health is the gateway's health report.
type Health struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Backend       string  `json:"backend"`
	Error         string  `json:"error,omitempty"`
}

// do issues one JSON request with the retry policy applied. The body is
// re-marshaled on every attempt so each try sends a complete payload.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := func() error {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, c.newBackoff(ctx))
}

// newBackoff builds the retry schedule for one call.
// BackOff implementations are stateful; always return a fresh instance.
func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	p := c.cfg.Retry
	if p.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.RandomizationFactor = p.Jitter
	bo.MaxElapsedTime = 0 // the attempt cap bounds the loop, not wall time
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// isRetryable classifies one failed attempt: 429 from the gateway,
// connection-level failures, and timeouts are retried. Every other
// status and error is permanent.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
