package query_test

import (
	"testing"

	"github.com/agoralabs/agora/internal/query"
	"github.com/stretchr/testify/assert"
)

func TestBuilders(t *testing.T) {
	tests := []struct {
		name     string
		cond     *query.Cond
		wantOp   query.Op
		wantVal  any
		rendered string
	}{
		{
			name:     "Eq",
			cond:     query.Eq("business.rating", 4.5),
			wantOp:   query.OpEq,
			wantVal:  4.5,
			rendered: "business.rating = 4.5",
		},
		{
			name:     "Gte",
			cond:     query.Gte("business.rating", 4.0),
			wantOp:   query.OpGte,
			wantVal:  4.0,
			rendered: "business.rating >= 4",
		},
		{
			name:     "Like",
			cond:     query.Like("business.name", "pizza"),
			wantOp:   query.OpLike,
			wantVal:  "pizza",
			rendered: "business.name like pizza",
		},
		{
			name:     "In",
			cond:     query.In("request.name", "send_message", "fetch_messages"),
			wantOp:   query.OpIn,
			wantVal:  []any{"send_message", "fetch_messages"},
			rendered: "request.name in [send_message fetch_messages]",
		},
		{
			name:     "NotNull",
			cond:     query.NotNull("business"),
			wantOp:   query.OpNotNull,
			wantVal:  nil,
			rendered: "business is not null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOp, tt.cond.Op)
			assert.Equal(t, tt.wantVal, tt.cond.Value)
			assert.Equal(t, tt.rendered, tt.cond.String())
			assert.NoError(t, query.Validate(tt.cond))
		})
	}
}

func TestComposition(t *testing.T) {
	// The filtered-search shape: base predicate AND-ed with constraints,
	// one of which is itself a disjunction.
	tree := query.NewAnd(
		query.NotNull("business"),
		query.Gte("business.rating", 4.0),
		query.NewOr(
			query.Like("business.name", "pasta"),
			query.Like("business.description", "pasta"),
		),
	)

	assert.NoError(t, query.Validate(tree))
	assert.Len(t, tree.Nodes, 3)
	assert.Equal(t,
		"(business is not null AND business.rating >= 4 AND (business.name like pasta OR business.description like pasta))",
		tree.String())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		node query.Node
	}{
		{"EmptyPath", query.Eq("", 1)},
		{"EmptySegment", query.Eq("business..rating", 1)},
		{"Quote", query.Eq(`business."rating`, 1)},
		{"EmptyIn", &query.Cond{Path: "a", Op: query.OpIn, Value: []any{}}},
		{"InScalar", &query.Cond{Path: "a", Op: query.OpIn, Value: "x"}},
		{"LikeNonString", &query.Cond{Path: "a", Op: query.OpLike, Value: 7}},
		{"NestedBad", query.NewAnd(query.Eq("ok", 1), query.NewOr(query.Eq("", 2)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, query.Validate(tt.node))
		})
	}
}
