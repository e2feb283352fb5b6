// Package types defines core data structures for the agora marketplace runtime.
package types

import (
	"fmt"
	"time"
)

// Participant is a registered marketplace identity: a customer, a business,
// or any other process that registered and holds a credential.
type Participant struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"` // profile payload, stored in the data column
	Embedding []byte         `json:"-"`                   // optional profile vector; storage-only
	AuthToken string         `json:"-"`                   // bearer credential; never serialized with the row
	RowIndex  int64          `json:"row_index"`
}

// Validate checks structural requirements before a participant row is written.
func (p *Participant) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	return nil
}

// Clone returns a deep-enough copy for handing rows across goroutines.
// Metadata is copied one level deep; nested values are shared.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	if p.Embedding != nil {
		cp.Embedding = append([]byte(nil), p.Embedding...)
	}
	return &cp
}

// ActionRequest names an action and carries its parameters. Parameters are
// validated against the protocol's schema before dispatch.
type ActionRequest struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks structural requirements before dispatch.
func (r *ActionRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("action name is required")
	}
	return nil
}

// ActionResult is what a handler produced: content on success, or an error
// payload with IsError set. Both shapes are journaled.
type ActionResult struct {
	Content  any            `json:"content"`
	IsError  bool           `json:"is_error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorResult builds a journaled error result with the conventional
// {"error": ..., "kind": ...} content shape.
func ErrorResult(kind, message string) *ActionResult {
	return &ActionResult{
		Content: map[string]any{"error": message, "kind": kind},
		IsError: true,
	}
}

// ErrorKind extracts the "kind" discriminator from an error result.
// Returns "" for success results and untagged errors.
func (r *ActionResult) ErrorKind() string {
	if r == nil || !r.IsError {
		return ""
	}
	content, ok := r.Content.(map[string]any)
	if !ok {
		return ""
	}
	kind, _ := content["kind"].(string)
	return kind
}

// Action is one journaled action execution. The row is written exactly once,
// after the handler returns, whether the result is a success or an error.
type Action struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	AgentID   string         `json:"agent_id"`
	Request   *ActionRequest `json:"request"`
	Result    *ActionResult  `json:"result"`
	RowIndex  int64          `json:"row_index"`
}

// Validate checks structural requirements before an action row is written.
func (a *Action) Validate() error {
	if a.AgentID == "" {
		return fmt.Errorf("action agent_id is required")
	}
	if a.Request == nil {
		return fmt.Errorf("action request is required")
	}
	if err := a.Request.Validate(); err != nil {
		return err
	}
	if a.Result == nil {
		return fmt.Errorf("action result is required")
	}
	return nil
}

// LogLevel is the severity of a journaled log entry.
type LogLevel string

// Log level constants, lowest to highest severity.
const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// IsValid checks if the level is one of the defined constants.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarning, LogError:
		return true
	}
	return false
}

// Severity returns a numeric rank for threshold comparisons
// (debug=0 .. error=3). Unknown levels rank below debug.
func (l LogLevel) Severity() int {
	switch l {
	case LogDebug:
		return 0
	case LogInfo:
		return 1
	case LogWarning:
		return 2
	case LogError:
		return 3
	}
	return -1
}

// LogEntry is one journaled log record shipped by an agent or emitted by
// the gateway itself.
type LogEntry struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Level     LogLevel       `json:"level"`
	Name      string         `json:"name"` // logger name, conventionally the agent id
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RowIndex  int64          `json:"row_index"`
}

// Validate checks structural requirements before a log row is written.
// An empty level is allowed and defaults to info at write time.
func (e *LogEntry) Validate() error {
	if e.Level != "" && !e.Level.IsValid() {
		return fmt.Errorf("invalid log level: %s", e.Level)
	}
	if e.Message == "" {
		return fmt.Errorf("log message is required")
	}
	return nil
}
