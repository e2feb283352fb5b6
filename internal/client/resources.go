package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/types"
)

// AgentsResource groups the participant endpoints. Resources share the
// client's pool, token, and retry policy.
type AgentsResource struct {
	c *Client
}

// Agents returns the participant endpoints.
func (c *Client) Agents() *AgentsResource { return &AgentsResource{c: c} }

type registerAgent struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type registerRequest struct {
	Agent      registerAgent `json:"agent"`
	AllocateID bool          `json:"allocate_id,omitempty"`
}

type registerResponse struct {
	Agent *types.Participant `json:"agent"`
	Token string             `json:"token"`
}

// Register creates a participant and fixes the returned identity and
// token on the client. With allocate set, id is treated as a base and
// the gateway registers base-N with the smallest unused N; the id to
// act under is the returned one, not the submitted one.
func (a *AgentsResource) Register(ctx context.Context, id string, metadata map[string]any, allocate bool) (*types.Participant, error) {
	req := registerRequest{
		Agent:      registerAgent{ID: id, Metadata: metadata},
		AllocateID: allocate,
	}
	var resp registerResponse
	if err := a.c.do(ctx, http.MethodPost, "/agents/register", req, &resp); err != nil {
		return nil, err
	}
	if resp.Agent == nil || resp.Token == "" {
		return nil, fmt.Errorf("gateway returned an incomplete registration for %q", id)
	}
	a.c.SetToken(resp.Token)
	a.c.SetAgentID(resp.Agent.ID)
	return resp.Agent, nil
}

type agentResponse struct {
	Agent *types.Participant `json:"agent"`
}

// Get fetches one participant row by id.
func (a *AgentsResource) Get(ctx context.Context, id string) (*types.Participant, error) {
	var resp agentResponse
	if err := a.c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agent, nil
}

// AgentPage is one window of the participant listing.
type AgentPage struct {
	Items   []*types.Participant `json:"items"`
	Total   int                  `json:"total"`
	Offset  int                  `json:"offset"`
	Limit   int                  `json:"limit"`
	HasMore bool                 `json:"has_more"`
}

// List returns one window of registered participants, ordered by row
// index. Zero offset and limit take the gateway defaults.
func (a *AgentsResource) List(ctx context.Context, offset, limit int) (*AgentPage, error) {
	var page AgentPage
	if err := a.c.do(ctx, http.MethodGet, "/agents"+window(offset, limit), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ActionsResource groups the action endpoints.
type ActionsResource struct {
	c *Client
}

// Actions returns the action endpoints.
func (c *Client) Actions() *ActionsResource { return &ActionsResource{c: c} }

// Execute runs one action as the registered agent. Business failures
// come back as results with IsError set, not as errors; the error
// return is for transport and caller mistakes.
func (r *ActionsResource) Execute(ctx context.Context, req *types.ActionRequest) (*types.ActionResult, error) {
	var result types.ActionResult
	if err := r.c.do(ctx, http.MethodPost, "/actions/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type protocolResponse struct {
	Actions []protocol.ActionDefinition `json:"actions"`
}

// Protocol lists the actions the gateway serves, with their parameter
// schemas.
func (r *ActionsResource) Protocol(ctx context.Context) ([]protocol.ActionDefinition, error) {
	var resp protocolResponse
	if err := r.c.do(ctx, http.MethodGet, "/actions/protocol", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// LogsResource groups the log journal endpoints.
type LogsResource struct {
	c *Client
}

// Logs returns the log journal endpoints.
func (c *Client) Logs() *LogsResource { return &LogsResource{c: c} }

type logCreateRequest struct {
	Log *types.LogEntry `json:"log"`
}

// Create ships one log entry to the gateway's journal.
func (r *LogsResource) Create(ctx context.Context, entry *types.LogEntry) error {
	return r.c.do(ctx, http.MethodPost, "/logs/create", logCreateRequest{Log: entry}, nil)
}

// LogPage is one window of the logs journal.
type LogPage struct {
	Items   []*types.LogEntry `json:"items"`
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	HasMore bool              `json:"has_more"`
}

// List returns one window of journaled log entries, ordered by row
// index.
func (r *LogsResource) List(ctx context.Context, offset, limit int) (*LogPage, error) {
	var page LogPage
	if err := r.c.do(ctx, http.MethodGet, "/logs"+window(offset, limit), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// window renders offset/limit into a query string, empty when both are
// unset.
func window(offset, limit int) string {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
