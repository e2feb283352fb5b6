package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// Fetch window defaults. The schema also caps limit at MaxFetchLimit, so
// the clamp here only matters for in-process callers.
const (
	DefaultFetchLimit = 100
	MaxFetchLimit     = 1000
)

type fetchArgs struct {
	FromAgentID string `json:"from_agent_id"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	After       string `json:"after"`
	AfterIndex  *int64 `json:"after_index"`
}

// fetchMessages returns journaled send_message rows addressed to the
// calling agent, ascending by row index. It reads limit+1 rows and drops
// the extra, reporting its existence as has_more.
func (m *Marketplace) fetchMessages(ctx context.Context, agent *types.Participant, params map[string]any, be storage.Backend) (*types.ActionResult, error) {
	var args fetchArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if limit > MaxFetchLimit {
		limit = MaxFetchLimit
	}

	rng := query.Range{Limit: limit + 1, Offset: args.Offset, AfterIndex: args.AfterIndex}
	if args.After != "" {
		t, err := time.Parse(time.RFC3339, args.After)
		if err != nil {
			return nil, protocol.NewCallerError("invalid after timestamp %q: %v", args.After, err)
		}
		rng.After = &t
	}

	conds := []query.Node{
		query.Eq("request.name", ActionSendMessage),
		query.Eq("request.parameters.to_agent_id", agent.ID),
	}
	if args.FromAgentID != "" {
		conds = append(conds, query.Eq("agent_id", args.FromAgentID))
	}

	rows, err := be.Actions().Find(ctx, query.NewAnd(conds...), rng)
	if err != nil {
		return nil, fmt.Errorf("fetching messages for %s: %w", agent.ID, err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	out := FetchResult{Messages: make([]ReceivedMessage, 0, len(rows)), HasMore: hasMore}
	for _, row := range rows {
		msg, err := receivedFromAction(row)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msg)
	}
	return &types.ActionResult{Content: out}, nil
}

// receivedFromAction projects one journaled send_message row into the
// recipient's view of it.
func receivedFromAction(a *types.Action) (ReceivedMessage, error) {
	var args sendArgs
	if err := decodeArgs(a.Request.Parameters, &args); err != nil {
		return ReceivedMessage{}, fmt.Errorf("decoding journaled message %s: %v", a.ID, err)
	}
	return ReceivedMessage{
		Index:       a.RowIndex,
		FromAgentID: a.AgentID,
		ToAgentID:   args.ToAgentID,
		Message:     args.Message,
		CreatedAt:   a.CreatedAt,
	}, nil
}
