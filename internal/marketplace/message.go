package marketplace

import "time"

// MessageType discriminates the message payload variants.
type MessageType string

const (
	MessageText          MessageType = "text"
	MessageOrderProposal MessageType = "order_proposal"
	MessagePayment       MessageType = "payment"
	MessageOrderUpdate   MessageType = "order_update"
)

// Message is the payload of a send_message action. Type selects the
// variant; the action schema closes the sum, so a decoded message carries
// exactly the fields of its variant. Fields are tagged omitempty so a
// composed message serializes back to a shape the schema admits.
type Message struct {
	Type MessageType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// order_proposal, payment, order_update
	ProposalID string `json:"proposal_id,omitempty"`

	// order_proposal
	LineItems  []map[string]any `json:"line_items,omitempty"`
	TotalCents int64            `json:"total_cents,omitempty"`
	ExpiresAt  string           `json:"expires_at,omitempty"`

	// payment
	AmountCents int64 `json:"amount_cents,omitempty"`

	// order_update
	Status string `json:"status,omitempty"`
	Note   string `json:"note,omitempty"`
}

// ReceivedMessage is one journaled send_message projected for its
// recipient. Index is the action's row index: clients persist the highest
// index they have processed and poll with after_index to resume from it.
type ReceivedMessage struct {
	Index       int64     `json:"index"`
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id"`
	Message     Message   `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// SendResult is the success content of a send_message action.
type SendResult struct {
	Status    string `json:"status"`
	ToAgentID string `json:"to_agent_id"`
}

// FetchResult is the content of a fetch_messages action. HasMore reports
// whether rows beyond the requested limit exist.
type FetchResult struct {
	Messages []ReceivedMessage `json:"messages"`
	HasMore  bool              `json:"has_more"`
}
