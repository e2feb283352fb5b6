package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

type sendArgs struct {
	ToAgentID string  `json:"to_agent_id"`
	Message   Message `json:"message"`
}

// sendMessage validates delivery and returns the send receipt. The
// message itself is not stored here: the dispatcher journals the whole
// action row, success or error, and that row is the message.
func (m *Marketplace) sendMessage(ctx context.Context, agent *types.Participant, params map[string]any, be storage.Backend) (*types.ActionResult, error) {
	var args sendArgs
	if err := decodeArgs(params, &args); err != nil {
		return nil, err
	}

	if _, err := be.Participants().GetByID(ctx, args.ToAgentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.ErrorResult("recipient_not_found", fmt.Sprintf("no agent %q", args.ToAgentID)), nil
		}
		return nil, fmt.Errorf("resolving recipient %s: %w", args.ToAgentID, err)
	}

	if args.Message.Type == MessagePayment {
		ok, err := proposalExists(ctx, be, args.ToAgentID, agent.ID, args.Message.ProposalID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return types.ErrorResult("invalid_proposal", fmt.Sprintf("no proposal %q from %s", args.Message.ProposalID, args.ToAgentID)), nil
		}
	}

	return &types.ActionResult{Content: SendResult{Status: "sent", ToAgentID: args.ToAgentID}}, nil
}

// proposalExists reports whether from has journaled an order_proposal
// with the given id addressed to to. A payment may only settle a proposal
// the payee actually issued to the payer. Proposal expiry is recorded on
// the payload but not enforced here.
func proposalExists(ctx context.Context, be storage.Backend, from, to, proposalID string) (bool, error) {
	pred := query.NewAnd(
		query.Eq("agent_id", from),
		query.Eq("request.name", ActionSendMessage),
		query.Eq("request.parameters.to_agent_id", to),
		query.Eq("request.parameters.message.type", string(MessageOrderProposal)),
		query.Eq("request.parameters.message.proposal_id", proposalID),
	)
	rows, err := be.Actions().Find(ctx, pred, query.Range{Limit: 1})
	if err != nil {
		return false, fmt.Errorf("looking up proposal %s: %w", proposalID, err)
	}
	return len(rows) > 0, nil
}
