// Package protocol defines the pluggable action surface of the gateway
// and the dispatcher that executes actions against it.
//
// A protocol declares its action names with JSON Schema parameter
// documents and an Execute method. The dispatcher validates parameters
// against the compiled schema, invokes the handler, and journals the
// full request/result pair as one action row.
package protocol

import (
	"context"
	"fmt"

	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// ActionDefinition declares one action a protocol supports.
type ActionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Parameters is the JSON Schema document for the action's
	// parameters. It is served verbatim on the protocol listing and
	// compiled for validation at registration. Nil means the action
	// takes arbitrary parameters.
	Parameters map[string]any `json:"parameters"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Protocol is a pluggable module of actions.
type Protocol interface {
	// Name identifies the protocol, e.g. "marketplace/v1".
	Name() string

	// Actions lists the protocol's action definitions.
	Actions() []ActionDefinition

	// Execute runs one validated action for agent. Business failures
	// are returned as results with IsError set; an error return means
	// the handler itself failed and nothing is journaled.
	Execute(ctx context.Context, agent *types.Participant, req *types.ActionRequest, be storage.Backend) (*types.ActionResult, error)
}

// CallerError is a request the caller got wrong: an unknown action
// name or parameters rejected by the action's schema. The gateway maps
// it to 400, and no action row is written.
type CallerError struct {
	msg string
}

func (e *CallerError) Error() string { return e.msg }

// NewCallerError formats a CallerError.
func NewCallerError(format string, args ...any) *CallerError {
	return &CallerError{msg: fmt.Sprintf(format, args...)}
}
