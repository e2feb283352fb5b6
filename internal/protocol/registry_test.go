package protocol

import (
	"context"
	"strings"
	"testing"

	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

// stubProtocol declares arbitrary definitions for registry tests.
type stubProtocol struct {
	name string
	defs []ActionDefinition
}

func (s stubProtocol) Name() string                { return s.name }
func (s stubProtocol) Actions() []ActionDefinition { return s.defs }
func (s stubProtocol) Execute(context.Context, *types.Participant, *types.ActionRequest, storage.Backend) (*types.ActionResult, error) {
	return &types.ActionResult{}, nil
}

func TestRegisterRejectsDuplicateActionNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubProtocol{name: "a/v1", defs: []ActionDefinition{{Name: "ping"}}}); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	err := r.Register(stubProtocol{name: "b/v1", defs: []ActionDefinition{{Name: "ping"}}})
	if err == nil {
		t.Fatal("duplicate action name should fail")
	}
	if !strings.Contains(err.Error(), "already registered") {
		t.Errorf("error = %v", err)
	}
}

func TestRegisterRejectsUnnamedAction(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubProtocol{name: "a/v1", defs: []ActionDefinition{{}}}); err == nil {
		t.Fatal("unnamed action should fail")
	}
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(stubProtocol{name: "a/v1", defs: []ActionDefinition{{
		Name:       "broken",
		Parameters: map[string]any{"type": 42},
	}}})
	if err == nil {
		t.Fatal("malformed schema should fail at registration")
	}
}

func TestActionsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubProtocol{name: "a/v1", defs: []ActionDefinition{
		{Name: "second_look"},
		{Name: "first_look"},
	}}); err != nil {
		t.Fatal(err)
	}

	defs := r.Actions()
	if len(defs) != 2 || defs[0].Name != "second_look" || defs[1].Name != "first_look" {
		t.Errorf("Actions() = %+v, want registration order", defs)
	}

	// The returned slice is a copy.
	defs[0].Name = "mutated"
	if r.Actions()[0].Name != "second_look" {
		t.Error("Actions() must not expose internal state")
	}
}

func TestNilParametersSkipValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubProtocol{name: "a/v1", defs: []ActionDefinition{{Name: "anything"}}}); err != nil {
		t.Fatal(err)
	}
	reg, ok := r.lookup("anything")
	if !ok {
		t.Fatal("lookup failed")
	}
	if reg.schema != nil {
		t.Error("nil Parameters should compile no schema")
	}
}
