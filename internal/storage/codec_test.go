package storage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/agoralabs/agora/internal/types"
)

func TestParticipantDataRoundTrip(t *testing.T) {
	p := &types.Participant{
		ID: "business-0",
		Metadata: map[string]any{
			"role": "business",
			"business": map[string]any{
				"name":   "Taco Cart",
				"rating": 4.5,
			},
		},
	}

	raw, err := EncodeParticipantData(p)
	if err != nil {
		t.Fatalf("EncodeParticipantData() error: %v", err)
	}

	var decoded types.Participant
	if err := DecodeParticipantData(raw, &decoded); err != nil {
		t.Fatalf("DecodeParticipantData() error: %v", err)
	}
	if decoded.Metadata["role"] != "business" {
		t.Errorf("round trip lost role: %+v", decoded.Metadata)
	}
	biz, ok := decoded.Metadata["business"].(map[string]any)
	if !ok || biz["name"] != "Taco Cart" {
		t.Errorf("round trip lost nested object: %+v", decoded.Metadata)
	}
}

func TestParticipantDataNilMetadata(t *testing.T) {
	raw, err := EncodeParticipantData(&types.Participant{ID: "customer-0"})
	if err != nil {
		t.Fatalf("EncodeParticipantData() error: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("nil metadata should encode as empty object, got %s", raw)
	}

	var decoded types.Participant
	if err := DecodeParticipantData(nil, &decoded); err != nil {
		t.Fatalf("DecodeParticipantData(nil) error: %v", err)
	}
	if decoded.Metadata == nil {
		t.Error("decoding an empty column should yield a usable map")
	}
}

func TestActionDataShape(t *testing.T) {
	a := &types.Action{
		AgentID: "customer-1",
		Request: &types.ActionRequest{
			Name:       "send_message",
			Parameters: map[string]any{"to_agent_id": "business-0"},
		},
		Result: &types.ActionResult{Content: map[string]any{"status": "sent"}},
	}

	raw, err := EncodeActionData(a)
	if err != nil {
		t.Fatalf("EncodeActionData() error: %v", err)
	}

	// The JSON paths handlers query against are part of the contract.
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if doc["agent_id"] != "customer-1" {
		t.Errorf("missing agent_id path: %s", raw)
	}
	req, _ := doc["request"].(map[string]any)
	if req == nil || req["name"] != "send_message" {
		t.Errorf("missing request.name path: %s", raw)
	}
	params, _ := req["parameters"].(map[string]any)
	if params == nil || params["to_agent_id"] != "business-0" {
		t.Errorf("missing request.parameters.to_agent_id path: %s", raw)
	}

	var decoded types.Action
	if err := DecodeActionData(raw, &decoded); err != nil {
		t.Fatalf("DecodeActionData() error: %v", err)
	}
	if decoded.AgentID != a.AgentID || decoded.Request.Name != a.Request.Name {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if decoded.Result.IsError {
		t.Error("success result decoded as error")
	}
}

func TestLogDataDefaultsLevel(t *testing.T) {
	raw, err := EncodeLogData(&types.LogEntry{Name: "customer-0", Message: "started"})
	if err != nil {
		t.Fatalf("EncodeLogData() error: %v", err)
	}
	if !strings.Contains(string(raw), `"level":"info"`) {
		t.Errorf("empty level should encode as info: %s", raw)
	}

	var decoded types.LogEntry
	if err := DecodeLogData(raw, &decoded); err != nil {
		t.Fatalf("DecodeLogData() error: %v", err)
	}
	if decoded.Level != types.LogInfo || decoded.Message != "started" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestApplyParticipantUpdates(t *testing.T) {
	tests := []struct {
		name    string
		start   *types.Participant
		updates map[string]any
		check   func(t *testing.T, p *types.Participant)
		wantErr string
	}{
		{
			name:    "merge metadata key",
			start:   &types.Participant{ID: "b-0", Metadata: map[string]any{"role": "business"}},
			updates: map[string]any{"status": "open"},
			check: func(t *testing.T, p *types.Participant) {
				if p.Metadata["status"] != "open" || p.Metadata["role"] != "business" {
					t.Errorf("merge lost keys: %+v", p.Metadata)
				}
			},
		},
		{
			name:    "nil value removes metadata key",
			start:   &types.Participant{ID: "b-0", Metadata: map[string]any{"status": "open"}},
			updates: map[string]any{"status": nil},
			check: func(t *testing.T, p *types.Participant) {
				if _, ok := p.Metadata["status"]; ok {
					t.Errorf("nil update should remove key: %+v", p.Metadata)
				}
			},
		},
		{
			name:    "auth_token targets the column",
			start:   &types.Participant{ID: "b-0"},
			updates: map[string]any{UpdateKeyAuthToken: "tok-123"},
			check: func(t *testing.T, p *types.Participant) {
				if p.AuthToken != "tok-123" {
					t.Errorf("AuthToken = %q", p.AuthToken)
				}
				if _, ok := p.Metadata[UpdateKeyAuthToken]; ok {
					t.Error("auth_token leaked into metadata")
				}
			},
		},
		{
			name:    "nil auth_token revokes",
			start:   &types.Participant{ID: "b-0", AuthToken: "tok-123"},
			updates: map[string]any{UpdateKeyAuthToken: nil},
			check: func(t *testing.T, p *types.Participant) {
				if p.AuthToken != "" {
					t.Errorf("AuthToken = %q, want cleared", p.AuthToken)
				}
			},
		},
		{
			name:    "embedding from byte slice",
			start:   &types.Participant{ID: "b-0"},
			updates: map[string]any{UpdateKeyEmbedding: []byte{1, 2}},
			check: func(t *testing.T, p *types.Participant) {
				if len(p.Embedding) != 2 {
					t.Errorf("Embedding = %v", p.Embedding)
				}
			},
		},
		{
			name:    "embedding from JSON array",
			start:   &types.Participant{ID: "b-0"},
			updates: map[string]any{UpdateKeyEmbedding: []any{0.1, 0.2}},
			check: func(t *testing.T, p *types.Participant) {
				if len(p.Embedding) == 0 {
					t.Error("Embedding not set from JSON array")
				}
			},
		},
		{
			name:    "wrong auth_token type",
			start:   &types.Participant{ID: "b-0"},
			updates: map[string]any{UpdateKeyAuthToken: 42},
			wantErr: "expected string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ApplyParticipantUpdates(tt.start, tt.updates)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, tt.start)
		})
	}
}

func TestSQLiteConnString(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		readOnly bool
		contains []string
	}{
		{
			name:     "plain path",
			path:     "/tmp/agora.db",
			contains: []string{"file:/tmp/agora.db?", "_pragma=busy_timeout", "_pragma=foreign_keys(ON)", "_time_format=sqlite"},
		},
		{
			name:     "read only",
			path:     "/tmp/agora.db",
			readOnly: true,
			contains: []string{"mode=ro"},
		},
		{
			name:     "existing URI keeps pragmas",
			path:     "file:/tmp/agora.db?_pragma=busy_timeout(5)",
			contains: []string{"_pragma=busy_timeout(5)", "_pragma=foreign_keys(ON)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SQLiteConnString(tt.path, tt.readOnly)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("SQLiteConnString() = %q, missing %q", got, want)
				}
			}
		})
	}

	if SQLiteConnString("  ", false) != "" {
		t.Error("blank path should produce empty conn string")
	}
}
