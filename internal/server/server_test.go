package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/agoralabs/agora/internal/config"
	"github.com/agoralabs/agora/internal/marketplace"
	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/sqlite"
	"github.com/agoralabs/agora/internal/types"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	be, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = be.Close() })
	return be
}

// startServer runs a gateway over be on an ephemeral port and returns
// its base URL. The server is shut down when the test finishes.
func startServer(t *testing.T, be storage.Backend) string {
	t.Helper()

	registry := protocol.NewRegistry()
	if err := registry.Register(marketplace.New()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"

	srv := New(cfg, be, registry, "test", log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Start() error = %v", err)
		}
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := srv.WaitReady(waitCtx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	return "http://" + srv.Addr()
}

func newTestServer(t *testing.T) string {
	t.Helper()
	return startServer(t, newTestBackend(t))
}

// doRaw issues one JSON request without failing the test, so it is
// safe to call from spawned goroutines.
func doRaw(method, url, token string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// do issues one JSON request and decodes the response into out when
// out is non-nil, returning the status code.
func do(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()

	status, raw, err := doRaw(method, url, token, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decoding %s %s response %q: %v", method, url, raw, err)
		}
	}
	return status
}

func register(t *testing.T, baseURL, id string, allocate bool) registerResponse {
	t.Helper()

	req := registerRequest{AllocateID: allocate}
	req.Agent.ID = id
	var resp registerResponse
	if status := do(t, http.MethodPost, baseURL+"/agents/register", "", req, &resp); status != http.StatusOK {
		t.Fatalf("register %q status = %d", id, status)
	}
	if resp.Agent == nil || resp.Token == "" {
		t.Fatalf("register %q returned incomplete response: %+v", id, resp)
	}
	return resp
}

func TestRegisterIssuesWorkingToken(t *testing.T) {
	baseURL := newTestServer(t)

	reg := register(t, baseURL, "alice", false)
	if reg.Agent.ID != "alice" {
		t.Errorf("registered id = %q, want alice", reg.Agent.ID)
	}
	if reg.Agent.CreatedAt.IsZero() {
		t.Error("registered agent has zero created_at")
	}

	// The issued token must authenticate to exactly the returned id.
	var got agentResponse
	if status := do(t, http.MethodGet, baseURL+"/agents/alice", reg.Token, nil, &got); status != http.StatusOK {
		t.Fatalf("GET /agents/alice status = %d", status)
	}
	if got.Agent.ID != "alice" {
		t.Errorf("fetched agent id = %q, want alice", got.Agent.ID)
	}
}

func TestRegisterNeverLeaksTokenInAgent(t *testing.T) {
	baseURL := newTestServer(t)

	reg := register(t, baseURL, "alice", false)

	var raw map[string]json.RawMessage
	status, body, err := doRaw(http.MethodGet, baseURL+"/agents/alice", reg.Token, nil)
	if err != nil || status != http.StatusOK {
		t.Fatalf("GET /agents/alice: status=%d err=%v", status, err)
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	var agent map[string]any
	if err := json.Unmarshal(raw["agent"], &agent); err != nil {
		t.Fatalf("decoding agent: %v", err)
	}
	for _, key := range []string{"auth_token", "token", "embedding"} {
		if _, ok := agent[key]; ok {
			t.Errorf("agent payload leaks %q", key)
		}
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	be := newTestBackend(t)
	baseURL := startServer(t, be)

	register(t, baseURL, "alice", false)

	req := registerRequest{}
	req.Agent.ID = "alice"
	if status := do(t, http.MethodPost, baseURL+"/agents/register", "", req, nil); status != http.StatusConflict {
		t.Fatalf("second register status = %d, want %d", status, http.StatusConflict)
	}

	// Exactly one alice row exists.
	rows, err := be.Participants().GetAll(context.Background(), query.Range{})
	if err != nil {
		t.Fatalf("GetAll() error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "alice" {
		t.Fatalf("participant rows = %+v, want one alice", rows)
	}
}

func TestRegisterAllocatesFromBase(t *testing.T) {
	baseURL := newTestServer(t)

	req := registerRequest{AllocateID: true}
	req.Agent.ID = "Agent"

	type outcome struct {
		id    string
		token string
		err   error
	}
	results := make(chan outcome, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, raw, err := doRaw(http.MethodPost, baseURL+"/agents/register", "", req)
			if err != nil {
				results <- outcome{err: err}
				return
			}
			if status != http.StatusOK {
				results <- outcome{err: fmt.Errorf("status %d: %s", status, raw)}
				return
			}
			var resp registerResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				results <- outcome{err: err}
				return
			}
			results <- outcome{id: resp.Agent.ID, token: resp.Token}
		}()
	}
	wg.Wait()
	close(results)

	var ids []string
	tokens := map[string]string{}
	for res := range results {
		if res.err != nil {
			t.Fatalf("concurrent register: %v", res.err)
		}
		ids = append(ids, res.id)
		tokens[res.id] = res.token
	}
	sort.Strings(ids)

	want := []string{"Agent-0", "Agent-1", "Agent-2"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("allocated ids = %v, want %v", ids, want)
		}
	}

	// Every allocation got its own working credential.
	for id, token := range tokens {
		var got agentResponse
		if status := do(t, http.MethodGet, baseURL+"/agents/"+id, token, nil, &got); status != http.StatusOK {
			t.Errorf("GET /agents/%s status = %d", id, status)
		} else if got.Agent.ID != id {
			t.Errorf("token for %s resolved to %s", id, got.Agent.ID)
		}
	}
}

func TestRegisterRejectsBadBodies(t *testing.T) {
	baseURL := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing id", registerRequest{}},
		{"empty body", nil},
		{"wrong shape", map[string]any{"agent": "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, err := doRaw(http.MethodPost, baseURL+"/agents/register", "", tt.body)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	baseURL := newTestServer(t)

	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/agents", nil},
		{http.MethodGet, "/agents/alice", nil},
		{http.MethodPost, "/actions/execute", types.ActionRequest{Name: "send_message"}},
		{http.MethodGet, "/actions/protocol", nil},
		{http.MethodPost, "/logs/create", logCreateRequest{}},
		{http.MethodGet, "/logs", nil},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			if status := do(t, rt.method, baseURL+rt.path, "", rt.body, nil); status != http.StatusUnauthorized {
				t.Errorf("no token: status = %d, want 401", status)
			}
			if status := do(t, rt.method, baseURL+rt.path, "not-a-token", rt.body, nil); status != http.StatusUnauthorized {
				t.Errorf("bad token: status = %d, want 401", status)
			}
		})
	}
}

func TestExecuteRoundTrip(t *testing.T) {
	be := newTestBackend(t)
	baseURL := startServer(t, be)

	alice := register(t, baseURL, "alice", false)
	bob := register(t, baseURL, "bob", false)

	send := types.ActionRequest{
		Name: "send_message",
		Parameters: map[string]any{
			"to_agent_id": "bob",
			"message":     map[string]any{"type": "text", "text": "hello over http"},
		},
	}
	var sendResult types.ActionResult
	if status := do(t, http.MethodPost, baseURL+"/actions/execute", alice.Token, send, &sendResult); status != http.StatusOK {
		t.Fatalf("execute send status = %d", status)
	}
	if sendResult.IsError {
		t.Fatalf("send result is an error: %+v", sendResult.Content)
	}

	// Exactly one journal row for the 200.
	count, err := be.Actions().Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("journal rows = %d, want 1", count)
	}

	fetch := types.ActionRequest{
		Name:       "fetch_messages",
		Parameters: map[string]any{},
	}
	var fetchResult struct {
		Content marketplace.FetchResult `json:"content"`
		IsError bool                    `json:"is_error"`
	}
	if status := do(t, http.MethodPost, baseURL+"/actions/execute", bob.Token, fetch, &fetchResult); status != http.StatusOK {
		t.Fatalf("execute fetch status = %d", status)
	}
	if fetchResult.IsError {
		t.Fatalf("fetch result is an error: %+v", fetchResult)
	}
	msgs := fetchResult.Content.Messages
	if len(msgs) != 1 {
		t.Fatalf("fetched %d messages, want 1", len(msgs))
	}
	if msgs[0].FromAgentID != "alice" || msgs[0].Message.Text != "hello over http" {
		t.Errorf("fetched message = %+v", msgs[0])
	}
}

func TestExecuteBusinessErrorRidesA200(t *testing.T) {
	baseURL := newTestServer(t)

	alice := register(t, baseURL, "alice", false)

	send := types.ActionRequest{
		Name: "send_message",
		Parameters: map[string]any{
			"to_agent_id": "ghost",
			"message":     map[string]any{"type": "text", "text": "anyone there?"},
		},
	}
	var result types.ActionResult
	if status := do(t, http.MethodPost, baseURL+"/actions/execute", alice.Token, send, &result); status != http.StatusOK {
		t.Fatalf("execute status = %d, want 200", status)
	}
	if !result.IsError {
		t.Fatal("expected an error result")
	}
	if kind := result.ErrorKind(); kind != "recipient_not_found" {
		t.Errorf("error kind = %q, want recipient_not_found", kind)
	}
}

func TestExecuteCallerErrorsAre400(t *testing.T) {
	be := newTestBackend(t)
	baseURL := startServer(t, be)

	alice := register(t, baseURL, "alice", false)

	tests := []struct {
		name string
		req  types.ActionRequest
	}{
		{"unknown action", types.ActionRequest{Name: "teleport"}},
		{"schema violation", types.ActionRequest{
			Name:       "send_message",
			Parameters: map[string]any{"to_agent_id": "bob"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status := do(t, http.MethodPost, baseURL+"/actions/execute", alice.Token, tt.req, nil); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}

	// Rejected requests never reach the journal.
	count, err := be.Actions().Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 0 {
		t.Errorf("journal rows = %d, want 0", count)
	}
}

func TestAgentListPaginates(t *testing.T) {
	baseURL := newTestServer(t)

	var token string
	for i := 0; i < 5; i++ {
		reg := register(t, baseURL, fmt.Sprintf("agent-%d", i), false)
		token = reg.Token
	}

	type page struct {
		Items   []*types.Participant `json:"items"`
		Total   int                  `json:"total"`
		Offset  int                  `json:"offset"`
		Limit   int                  `json:"limit"`
		HasMore bool                 `json:"has_more"`
	}

	var first page
	if status := do(t, http.MethodGet, baseURL+"/agents?limit=2", token, nil, &first); status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	if len(first.Items) != 2 || first.Total != 5 || !first.HasMore {
		t.Fatalf("first page = %+v", first)
	}
	if first.Items[0].ID != "agent-0" || first.Items[1].ID != "agent-1" {
		t.Errorf("first page ids = %s, %s", first.Items[0].ID, first.Items[1].ID)
	}

	var last page
	if status := do(t, http.MethodGet, baseURL+"/agents?limit=2&offset=4", token, nil, &last); status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	if len(last.Items) != 1 || last.HasMore {
		t.Fatalf("last page = %+v", last)
	}
	if last.Items[0].ID != "agent-4" {
		t.Errorf("last page id = %s", last.Items[0].ID)
	}

	if status := do(t, http.MethodGet, baseURL+"/agents?limit=nope", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", status)
	}
}

func TestAgentGetUnknownIs404(t *testing.T) {
	baseURL := newTestServer(t)
	alice := register(t, baseURL, "alice", false)

	if status := do(t, http.MethodGet, baseURL+"/agents/nobody", alice.Token, nil, nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestProtocolListing(t *testing.T) {
	baseURL := newTestServer(t)
	alice := register(t, baseURL, "alice", false)

	var resp protocolResponse
	if status := do(t, http.MethodGet, baseURL+"/actions/protocol", alice.Token, nil, &resp); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	got := map[string]bool{}
	for _, def := range resp.Actions {
		got[def.Name] = def.Parameters != nil
	}
	for _, name := range []string{"send_message", "fetch_messages", "search_businesses"} {
		hasSchema, ok := got[name]
		if !ok {
			t.Errorf("protocol listing is missing %s", name)
			continue
		}
		if !hasSchema {
			t.Errorf("%s has no parameters schema", name)
		}
	}
}

func TestLogCreateAndList(t *testing.T) {
	baseURL := newTestServer(t)
	alice := register(t, baseURL, "alice", false)

	created := logCreateRequest{}
	created.Log.Level = types.LogInfo
	created.Log.Message = "agent started"
	created.Log.Data = map[string]any{"attempt": 1}

	var createResp map[string]any
	if status := do(t, http.MethodPost, baseURL+"/logs/create", alice.Token, created, &createResp); status != http.StatusOK {
		t.Fatalf("create status = %d", status)
	}
	if errVal, ok := createResp["error"]; !ok || errVal != nil {
		t.Errorf("create response = %v, want error: null", createResp)
	}

	var list struct {
		Items []*types.LogEntry `json:"items"`
		Total int               `json:"total"`
	}
	if status := do(t, http.MethodGet, baseURL+"/logs", alice.Token, nil, &list); status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("log list = %+v", list)
	}
	entry := list.Items[0]
	if entry.Message != "agent started" || entry.Level != types.LogInfo {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Name != "alice" {
		t.Errorf("entry name = %q, want the sender's id", entry.Name)
	}

	bad := logCreateRequest{}
	bad.Log.Level = "loud"
	bad.Log.Message = "x"
	if status := do(t, http.MethodPost, baseURL+"/logs/create", alice.Token, bad, nil); status != http.StatusBadRequest {
		t.Errorf("bad level status = %d, want 400", status)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	baseURL := newTestServer(t)

	var resp healthResponse
	if status := do(t, http.MethodGet, baseURL+"/health", "", nil, &resp); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.Backend != config.BackendSQLite {
		t.Errorf("backend = %q, want %q", resp.Backend, config.BackendSQLite)
	}
	if resp.UptimeSeconds < 1 {
		t.Errorf("uptime_seconds = %v, want >= 1", resp.UptimeSeconds)
	}
}

func TestMethodGuards(t *testing.T) {
	baseURL := newTestServer(t)
	alice := register(t, baseURL, "alice", false)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/agents/register"},
		{http.MethodPost, "/agents"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/actions/execute"},
	}
	for _, tt := range tests {
		if status := do(t, tt.method, baseURL+tt.path, alice.Token, nil, nil); status != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.path, status)
		}
	}
}

// busyParticipants simulates storage congestion on reads.
type busyParticipants struct {
	storage.ParticipantStore
}

func (busyParticipants) GetAll(context.Context, query.Range) ([]*types.Participant, error) {
	return nil, storage.ErrTooBusy
}

type busyBackend struct {
	storage.Backend
}

func (b busyBackend) Participants() storage.ParticipantStore {
	return busyParticipants{b.Backend.Participants()}
}

func TestBusyStorageIs429(t *testing.T) {
	baseURL := startServer(t, busyBackend{newTestBackend(t)})

	alice := register(t, baseURL, "alice", false)

	if status := do(t, http.MethodGet, baseURL+"/agents", alice.Token, nil, nil); status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", status)
	}
}

func TestCapConcurrencyRejectsOverflow(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(capConcurrency(inner, 1))
	defer ts.Close()

	firstDone := make(chan error, 1)
	go func() {
		resp, err := http.Get(ts.URL)
		if err == nil {
			resp.Body.Close()
		}
		firstDone <- err
	}()
	<-entered // the first request now holds the only slot

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("overflow status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first request: %v", err)
	}
}

func TestGracefulShutdown(t *testing.T) {
	be := newTestBackend(t)

	registry := protocol.NewRegistry()
	if err := registry.Register(marketplace.New()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	srv := New(cfg, be, registry, "test", log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := srv.WaitReady(waitCtx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() after shutdown = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
