package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// Dispatcher validates, executes, and journals actions. One instance
// serves the whole gateway.
type Dispatcher struct {
	registry *Registry
	backend  storage.Backend
}

// NewDispatcher returns a Dispatcher executing against be.
func NewDispatcher(registry *Registry, be storage.Backend) *Dispatcher {
	return &Dispatcher{registry: registry, backend: be}
}

// Execute runs one action for agent and appends the request/result
// pair to the actions journal.
//
// Unknown names and schema violations return CallerError and write no
// row. Handler results are journaled whether or not IsError is set; if
// that append fails the result is withheld and the error surfaces, so
// the caller retries the whole operation against a journal that holds
// no trace of it. An error from the handler itself writes no row.
func (d *Dispatcher) Execute(ctx context.Context, agent *types.Participant, req *types.ActionRequest) (*types.ActionResult, error) {
	reg, ok := d.registry.lookup(req.Name)
	if !ok {
		return nil, NewCallerError("unknown action: %s", req.Name)
	}

	if reg.schema != nil {
		params, err := normalizeParams(req.Parameters)
		if err != nil {
			return nil, NewCallerError("invalid parameters for %s: %v", req.Name, err)
		}
		if err := reg.schema.Validate(params); err != nil {
			return nil, NewCallerError("invalid parameters for %s: %v", req.Name, err)
		}
	}

	createdAt, err := stampFromParams(req.Parameters)
	if err != nil {
		return nil, NewCallerError("invalid created_at for %s: %v", req.Name, err)
	}

	result, err := reg.proto.Execute(ctx, agent, req, d.backend)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", req.Name, err)
	}

	if _, err := d.backend.Actions().Create(ctx, &types.Action{
		AgentID:   agent.ID,
		CreatedAt: createdAt,
		Request:   req,
		Result:    result,
	}); err != nil {
		return nil, fmt.Errorf("journaling %s: %w", req.Name, err)
	}
	return result, nil
}

// normalizeParams round-trips parameters through encoding/json so the
// validator sees wire-shaped values regardless of how the request was
// constructed in-process.
func normalizeParams(params map[string]any) (any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// stampFromParams honors a created_at parameter when present, so
// fixtures and backfills control the journal row's timestamp. Zero
// means the backend stamps insertion time.
func stampFromParams(params map[string]any) (time.Time, error) {
	v, ok := params["created_at"]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected RFC 3339 string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
