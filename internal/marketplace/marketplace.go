// Package marketplace implements protocol "marketplace/v1": agent-to-agent
// messaging and business discovery on top of the actions journal.
//
// Messages have no table of their own. A sent message is the journaled
// send_message action row, and fetch_messages is a query over those rows.
// Search reads business profiles straight off the participants table.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agoralabs/agora/internal/protocol"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// ProtocolName identifies this protocol on action listings.
const ProtocolName = "marketplace/v1"

// Action names.
const (
	ActionSendMessage      = "send_message"
	ActionFetchMessages    = "fetch_messages"
	ActionSearchBusinesses = "search_businesses"
)

// Marketplace is the protocol implementation. It is stateless; all state
// lives in the storage backend passed to Execute.
type Marketplace struct{}

// New returns the marketplace protocol.
func New() *Marketplace {
	return &Marketplace{}
}

// Name implements protocol.Protocol.
func (m *Marketplace) Name() string { return ProtocolName }

// Actions implements protocol.Protocol.
func (m *Marketplace) Actions() []protocol.ActionDefinition {
	return []protocol.ActionDefinition{
		{
			Name:        ActionSendMessage,
			Description: "Send a message to another agent. Payment messages must reference an order proposal previously received from the recipient.",
			Parameters:  mustSchema(sendMessageSchema),
		},
		{
			Name:        ActionFetchMessages,
			Description: "Fetch messages addressed to the calling agent, ordered oldest first. The returned index is a checkpoint for incremental polling.",
			Parameters:  mustSchema(fetchMessagesSchema),
		},
		{
			Name:        ActionSearchBusinesses,
			Description: "Search registered businesses. Algorithms: simple, filtered, lexical, optimal.",
			Parameters:  mustSchema(searchBusinessesSchema),
		},
	}
}

// Execute implements protocol.Protocol. Parameters have already been
// validated against the action schema by the dispatcher.
func (m *Marketplace) Execute(ctx context.Context, agent *types.Participant, req *types.ActionRequest, be storage.Backend) (*types.ActionResult, error) {
	switch req.Name {
	case ActionSendMessage:
		return m.sendMessage(ctx, agent, req.Parameters, be)
	case ActionFetchMessages:
		return m.fetchMessages(ctx, agent, req.Parameters, be)
	case ActionSearchBusinesses:
		return m.searchBusinesses(ctx, agent, req.Parameters, be)
	default:
		return nil, fmt.Errorf("marketplace has no action %q", req.Name)
	}
}

// decodeArgs round-trips schema-validated parameters into a typed args
// struct, so handlers read the same shapes the schema admitted.
func decodeArgs(params map[string]any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return protocol.NewCallerError("invalid parameters: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return protocol.NewCallerError("invalid parameters: %v", err)
	}
	return nil
}
