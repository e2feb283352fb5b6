package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// registration binds one action name to its protocol and compiled
// parameter schema.
type registration struct {
	proto  Protocol
	def    ActionDefinition
	schema *jsonschema.Schema
}

// Registry holds registered protocols keyed by action name. Schemas
// are compiled once here so the dispatcher validates on the hot path
// without recompiling.
type Registry struct {
	byAction map[string]registration
	defs     []ActionDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byAction: map[string]registration{}}
}

// Register adds every action of p, compiling parameter schemas. Action
// names are global: a name already claimed by another protocol is an
// error.
func (r *Registry) Register(p Protocol) error {
	for _, def := range p.Actions() {
		if def.Name == "" {
			return fmt.Errorf("protocol %s declares an action without a name", p.Name())
		}
		if prev, ok := r.byAction[def.Name]; ok {
			return fmt.Errorf("action %q already registered by protocol %s", def.Name, prev.proto.Name())
		}

		var schema *jsonschema.Schema
		if def.Parameters != nil {
			var err error
			schema, err = compileSchema(def.Name, def.Parameters)
			if err != nil {
				return fmt.Errorf("protocol %s action %s: %w", p.Name(), def.Name, err)
			}
		}

		r.byAction[def.Name] = registration{proto: p, def: def, schema: schema}
		r.defs = append(r.defs, def)
	}
	return nil
}

// Actions lists every registered action definition in registration
// order. The gateway serves this on the protocol listing endpoint.
func (r *Registry) Actions() []ActionDefinition {
	out := make([]ActionDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) lookup(name string) (registration, bool) {
	reg, ok := r.byAction[name]
	return reg, ok
}

// compileSchema compiles a schema document for one action.
func compileSchema(action string, doc map[string]any) (*jsonschema.Schema, error) {
	// Round-trip through encoding/json so the compiler sees the
	// document exactly as it would arrive off the wire.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	resource := action + ".json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
