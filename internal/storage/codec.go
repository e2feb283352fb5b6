package storage

import (
	"encoding/json"
	"fmt"

	"github.com/agoralabs/agora/internal/types"
)

// The data column payloads are a wire contract shared by every backend:
// the JSON paths the query engine addresses must resolve identically no
// matter which backend wrote the row. All encoding goes through here.

// actionData is the actions.data column shape.
type actionData struct {
	AgentID string               `json:"agent_id"`
	Request *types.ActionRequest `json:"request"`
	Result  *types.ActionResult  `json:"result"`
}

// logData is the logs.data column shape.
type logData struct {
	Level    types.LogLevel `json:"level"`
	Name     string         `json:"name,omitempty"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EncodeParticipantData marshals a participant's profile payload.
// A nil metadata map encodes as the empty object so JSON path queries
// see a consistent document shape.
func EncodeParticipantData(p *types.Participant) ([]byte, error) {
	md := p.Metadata
	if md == nil {
		md = map[string]any{}
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode participant data: %w", err)
	}
	return raw, nil
}

// DecodeParticipantData unmarshals a data column into the participant.
func DecodeParticipantData(raw []byte, p *types.Participant) error {
	if len(raw) == 0 {
		p.Metadata = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(raw, &p.Metadata); err != nil {
		return fmt.Errorf("decode participant data: %w", err)
	}
	return nil
}

// EncodeActionData marshals an action's journal payload.
func EncodeActionData(a *types.Action) ([]byte, error) {
	raw, err := json.Marshal(actionData{
		AgentID: a.AgentID,
		Request: a.Request,
		Result:  a.Result,
	})
	if err != nil {
		return nil, fmt.Errorf("encode action data: %w", err)
	}
	return raw, nil
}

// DecodeActionData unmarshals a data column into the action.
func DecodeActionData(raw []byte, a *types.Action) error {
	var d actionData
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decode action data: %w", err)
	}
	a.AgentID = d.AgentID
	a.Request = d.Request
	a.Result = d.Result
	return nil
}

// EncodeLogData marshals a log entry's journal payload. An empty level
// is written as info.
func EncodeLogData(e *types.LogEntry) ([]byte, error) {
	level := e.Level
	if level == "" {
		level = types.LogInfo
	}
	raw, err := json.Marshal(logData{
		Level:    level,
		Name:     e.Name,
		Message:  e.Message,
		Data:     e.Data,
		Metadata: e.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode log data: %w", err)
	}
	return raw, nil
}

// DecodeLogData unmarshals a data column into the log entry.
func DecodeLogData(raw []byte, e *types.LogEntry) error {
	var d logData
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decode log data: %w", err)
	}
	e.Level = d.Level
	e.Name = d.Name
	e.Message = d.Message
	e.Data = d.Data
	e.Metadata = d.Metadata
	return nil
}
