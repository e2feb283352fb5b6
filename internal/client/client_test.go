package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agoralabs/agora/internal/types"
)

// fastRetry keeps test retries down to a few milliseconds.
func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Jitter:         0,
	}
}

func newClient(t *testing.T, baseURL string, retry RetryPolicy) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Timeout: 5 * time.Second, Retry: retry})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRetriesOn429(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		n := len(bodies)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"server at capacity"}`))
			return
		}
		_, _ = w.Write([]byte(`{"content":{"status":"sent"}}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(5))

	result, err := c.Actions().Execute(context.Background(), &types.ActionRequest{
		Name:       "send_message",
		Parameters: map[string]any{"to_agent_id": "bob"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("Execute() result = %+v", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 3 {
		t.Fatalf("attempts = %d, want 3", len(bodies))
	}
	// Every attempt must carry the full payload, not a drained body.
	for i, body := range bodies {
		if body != bodies[0] || body == "" {
			t.Errorf("attempt %d body = %q, want %q", i+1, body, bodies[0])
		}
	}
}

func TestCallerErrorsArePermanent(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown action: teleport"}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(5))

	_, err := c.Actions().Execute(context.Background(), &types.ActionRequest{Name: "teleport"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Execute() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
	if apiErr.Message != "unknown action: teleport" {
		t.Errorf("message = %q", apiErr.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", hits)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(3))

	_, err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("Health() error = %v, want 429 APIError", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 3 {
		t.Errorf("attempts = %d, want 3", hits)
	}
}

func TestSingleAttemptPolicy(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(1))

	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("Health() succeeded, want error")
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("attempts = %d, want 1", hits)
	}
}

func TestConnectionDropRetries(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		first := hits == 1
		mu.Unlock()

		if first {
			// Slam the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				panic("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				panic(err)
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy","backend":"sqlite"}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(4))

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "healthy" {
		t.Errorf("status = %q", h.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 2 {
		t.Errorf("attempts = %d, want 2", hits)
	}
}

func TestSharedPoolRefCounting(t *testing.T) {
	cfg := Config{BaseURL: "http://127.0.0.1:9", Timeout: time.Second, Retry: fastRetry(2)}

	c1, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c2, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c1.httpClient != c2.httpClient {
		t.Error("same config, different pools")
	}

	other := cfg
	other.Timeout = 2 * time.Second
	c3, err := New(other)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c3.httpClient == c1.httpClient {
		t.Error("different timeout must not share a pool")
	}

	c1.Close()
	c1.Close() // idempotent
	poolMu.Lock()
	if st := pools[c1.key]; st == nil || st.refs != 1 {
		t.Errorf("after first Close, refs = %+v, want 1", st)
	}
	poolMu.Unlock()

	c2.Close()
	poolMu.Lock()
	if _, ok := pools[c2.key]; ok {
		t.Error("pool survived its last reference")
	}
	poolMu.Unlock()

	c3.Close()
}

func TestRegisterFixesIdentity(t *testing.T) {
	var mu sync.Mutex
	var registerAuth, getAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/register":
			mu.Lock()
			registerAuth = r.Header.Get("Authorization")
			mu.Unlock()

			var req registerRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(registerResponse{
				Agent: &types.Participant{ID: req.Agent.ID + "-0"},
				Token: "tok-123",
			})
		case "/agents/Agent-0":
			mu.Lock()
			getAuth = r.Header.Get("Authorization")
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(agentResponse{Agent: &types.Participant{ID: "Agent-0"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(1))

	agent, err := c.Agents().Register(context.Background(), "Agent", map[string]any{"role": "customer"}, true)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if agent.ID != "Agent-0" {
		t.Errorf("registered id = %q, want Agent-0", agent.ID)
	}
	if c.AgentID() != "Agent-0" || c.Token() != "tok-123" {
		t.Errorf("client identity = (%q, %q), want (Agent-0, tok-123)", c.AgentID(), c.Token())
	}

	if _, err := c.Agents().Get(context.Background(), "Agent-0"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if registerAuth != "" {
		t.Errorf("register carried Authorization %q, want none", registerAuth)
	}
	if getAuth != "Bearer tok-123" {
		t.Errorf("get Authorization = %q, want the issued token", getAuth)
	}
}

func TestListWindows(t *testing.T) {
	var mu sync.Mutex
	var gotQuery string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotQuery = r.URL.RawQuery
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(AgentPage{Items: []*types.Participant{}, Limit: 2, Offset: 4})
	}))
	defer ts.Close()

	c := newClient(t, ts.URL, fastRetry(1))

	if _, err := c.Agents().List(context.Background(), 4, 2); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotQuery != "limit=2&offset=4" {
		t.Errorf("query = %q, want limit=2&offset=4", gotQuery)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty base URL succeeded")
	}

	c, err := New(Config{BaseURL: "http://127.0.0.1:9/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()
	if c.BaseURL() != "http://127.0.0.1:9" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
	}
	if c.cfg.Retry != DefaultRetryPolicy() {
		t.Errorf("zero retry policy was not defaulted: %+v", c.cfg.Retry)
	}
}
