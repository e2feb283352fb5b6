// Package query defines the backend-neutral predicate tree used to filter
// journal rows by their JSON payloads. Handlers build trees with the
// constructor helpers; each storage backend compiles the tree to its own
// SQL dialect. Handlers never see SQL.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Op is a comparison operator applied to a JSON path.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpIsNull
	OpNotNull
)

// String returns the operator's display form, used in error messages
// and debug output.
func (op Op) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpLike:
		return "like"
	case OpNotLike:
		return "not like"
	case OpIsNull:
		return "is null"
	case OpNotNull:
		return "is not null"
	default:
		return "?"
	}
}

// Node is a node in the predicate tree.
type Node interface {
	node() // marker method
	String() string
}

// Cond compares the value at a JSON path against a literal.
// Path is dot-separated ("business.rating"); segments may not contain
// dots, quotes, backslashes, brackets, or control characters.
type Cond struct {
	Path  string
	Op    Op
	Value any // []any for OpIn/OpNotIn; ignored for OpIsNull/OpNotNull
}

func (c *Cond) node() {}
func (c *Cond) String() string {
	switch c.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", c.Path, c.Op)
	default:
		return fmt.Sprintf("%s %s %v", c.Path, c.Op, c.Value)
	}
}

// And is the conjunction of its children. An empty And matches everything.
type And struct {
	Nodes []Node
}

func (a *And) node() {}
func (a *And) String() string {
	parts := make([]string, len(a.Nodes))
	for i, n := range a.Nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// Or is the disjunction of its children. An empty Or matches nothing.
type Or struct {
	Nodes []Node
}

func (o *Or) node() {}
func (o *Or) String() string {
	parts := make([]string, len(o.Nodes))
	for i, n := range o.Nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Constructor helpers. Handlers read better with query.Eq("a.b", v) than
// with struct literals.

func Eq(path string, v any) *Cond      { return &Cond{Path: path, Op: OpEq, Value: v} }
func Ne(path string, v any) *Cond      { return &Cond{Path: path, Op: OpNe, Value: v} }
func Gt(path string, v any) *Cond      { return &Cond{Path: path, Op: OpGt, Value: v} }
func Gte(path string, v any) *Cond     { return &Cond{Path: path, Op: OpGte, Value: v} }
func Lt(path string, v any) *Cond      { return &Cond{Path: path, Op: OpLt, Value: v} }
func Lte(path string, v any) *Cond     { return &Cond{Path: path, Op: OpLte, Value: v} }
func In(path string, vs ...any) *Cond  { return &Cond{Path: path, Op: OpIn, Value: vs} }
func NotIn(path string, vs ...any) *Cond {
	return &Cond{Path: path, Op: OpNotIn, Value: vs}
}

// Like matches when the value at path contains v as a case-insensitive
// substring. Backends compile it so the behavior is identical across
// dialects regardless of collation.
func Like(path, v string) *Cond    { return &Cond{Path: path, Op: OpLike, Value: v} }
func NotLike(path, v string) *Cond { return &Cond{Path: path, Op: OpNotLike, Value: v} }

// IsNull matches when the path is absent or holds JSON null. NotNull is
// its complement. Backends must agree on the absent-vs-null equivalence.
func IsNull(path string) *Cond  { return &Cond{Path: path, Op: OpIsNull} }
func NotNull(path string) *Cond { return &Cond{Path: path, Op: OpNotNull} }

func NewAnd(nodes ...Node) *And { return &And{Nodes: nodes} }
func NewOr(nodes ...Node) *Or   { return &Or{Nodes: nodes} }

// Range bounds and paginates a row scan. Results are always ordered
// ascending by row index; Offset and Limit apply after the bound filters.
// After/Before are exclusive creation-time bounds; AfterIndex/BeforeIndex
// are exclusive row-index bounds.
type Range struct {
	Offset      int
	Limit       int // <= 0 means no limit
	After       *time.Time
	Before      *time.Time
	AfterIndex  *int64
	BeforeIndex *int64
}

// Normalize clamps negative offsets and limits to zero.
func (r Range) Normalize() Range {
	if r.Offset < 0 {
		r.Offset = 0
	}
	if r.Limit < 0 {
		r.Limit = 0
	}
	return r
}

// pathSegmentDisallowed rejects characters that would break out of a
// quoted JSON path segment in either SQL dialect.
const pathSegmentDisallowed = "\"\\$[]"

// SplitPath validates a dot-separated path and returns its segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty query path")
	}
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("query path %q has an empty segment", path)
		}
		if strings.ContainsAny(seg, pathSegmentDisallowed) {
			return nil, fmt.Errorf("query path segment %q contains a disallowed character", seg)
		}
		for _, r := range seg {
			if r < 0x20 {
				return nil, fmt.Errorf("query path segment %q contains a control character", seg)
			}
		}
	}
	return segs, nil
}

// JSONPath renders a validated path in the quoted $."a"."b" form accepted
// by both SQLite and MySQL JSON functions. The rendered path is intended
// to be bound as a statement parameter, never interpolated.
func JSONPath(path string) (string, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('$')
	for _, seg := range segs {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

// Validate walks the tree checking every path and operator/value pairing.
func Validate(n Node) error {
	switch t := n.(type) {
	case *Cond:
		if _, err := SplitPath(t.Path); err != nil {
			return err
		}
		switch t.Op {
		case OpIn, OpNotIn:
			vs, ok := t.Value.([]any)
			if !ok {
				return fmt.Errorf("%s on %q requires a value list", t.Op, t.Path)
			}
			if len(vs) == 0 {
				return fmt.Errorf("%s on %q requires at least one value", t.Op, t.Path)
			}
		case OpLike, OpNotLike:
			if _, ok := t.Value.(string); !ok {
				return fmt.Errorf("%s on %q requires a string value", t.Op, t.Path)
			}
		}
		return nil
	case *And:
		for _, child := range t.Nodes {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	case *Or:
		for _, child := range t.Nodes {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unknown query node type %T", n)
	}
}
