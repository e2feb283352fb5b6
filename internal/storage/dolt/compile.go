package dolt

import (
	"fmt"
	"strings"

	"github.com/agoralabs/agora/internal/query"
)

// compileNode compiles a predicate tree to a MySQL WHERE fragment over the
// data column. JSON paths are bound as parameters, never interpolated. The
// fragments are shaped so that rows match exactly when the sqlite compiler
// would match them on the same data.
func compileNode(n query.Node) (string, []any, error) {
	switch t := n.(type) {
	case nil:
		return "1=1", nil, nil
	case *query.Cond:
		return compileCond(t)
	case *query.And:
		if len(t.Nodes) == 0 {
			return "1=1", nil, nil
		}
		return compileJunction(t.Nodes, " AND ")
	case *query.Or:
		if len(t.Nodes) == 0 {
			return "1=0", nil, nil
		}
		return compileJunction(t.Nodes, " OR ")
	default:
		return "", nil, fmt.Errorf("unknown query node type %T", n)
	}
}

func compileJunction(nodes []query.Node, sep string) (string, []any, error) {
	clauses := make([]string, 0, len(nodes))
	args := []any{}
	for _, child := range nodes {
		sql, childArgs, err := compileNode(child)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, sql)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(clauses, sep) + ")", args, nil
}

func compileCond(c *query.Cond) (string, []any, error) {
	path, err := query.JSONPath(c.Path)
	if err != nil {
		return "", nil, err
	}

	switch c.Op {
	case query.OpEq:
		return compileScalarCmp(path, "=", c.Value)
	case query.OpNe:
		return compileScalarCmp(path, "<>", c.Value)
	case query.OpGt:
		return compileScalarCmp(path, ">", c.Value)
	case query.OpGte:
		return compileScalarCmp(path, ">=", c.Value)
	case query.OpLt:
		return compileScalarCmp(path, "<", c.Value)
	case query.OpLte:
		return compileScalarCmp(path, "<=", c.Value)
	case query.OpIn, query.OpNotIn:
		vs, ok := c.Value.([]any)
		if !ok || len(vs) == 0 {
			return "", nil, fmt.Errorf("%s on %q requires a non-empty value list", c.Op, c.Path)
		}
		// Element-wise comparison keeps the per-type JSON handling; the
		// junction has the same three-valued truth table as IN/NOT IN.
		cmp, sep := "=", " OR "
		if c.Op == query.OpNotIn {
			cmp, sep = "<>", " AND "
		}
		clauses := make([]string, 0, len(vs))
		var args []any
		for _, v := range vs {
			clause, clauseArgs, err := compileScalarCmp(path, cmp, v)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, clauseArgs...)
		}
		return "(" + strings.Join(clauses, sep) + ")", args, nil
	case query.OpLike, query.OpNotLike:
		s, ok := c.Value.(string)
		if !ok {
			return "", nil, fmt.Errorf("%s on %q requires a string value", c.Op, c.Path)
		}
		kw := "LIKE"
		if c.Op == query.OpNotLike {
			kw = "NOT LIKE"
		}
		// Case folding happens on both sides so collation differences
		// between backends cannot change match results.
		clause := fmt.Sprintf(`LOWER(JSON_UNQUOTE(JSON_EXTRACT(data, ?))) %s ? ESCAPE '\\'`, kw)
		return clause, []any{path, likePattern(s)}, nil
	case query.OpIsNull:
		// JSON_EXTRACT yields SQL NULL for a missing path but a JSON null
		// literal for an explicit null; the contract treats both alike,
		// matching sqlite's collapse of the two cases.
		return "(JSON_EXTRACT(data, ?) IS NULL OR JSON_TYPE(JSON_EXTRACT(data, ?)) = 'NULL')", []any{path, path}, nil
	case query.OpNotNull:
		return "(JSON_EXTRACT(data, ?) IS NOT NULL AND JSON_TYPE(JSON_EXTRACT(data, ?)) <> 'NULL')", []any{path, path}, nil
	default:
		return "", nil, fmt.Errorf("unknown operator %v on %q", c.Op, c.Path)
	}
}

// compileScalarCmp renders one comparison, dispatching on the value type:
// booleans compare as JSON literals, strings compare unquoted so "x" in the
// document equals the bound 'x', and numbers ride MySQL's JSON-to-numeric
// coercion. A missing path yields SQL NULL in every branch, which excludes
// the row under all six operators.
func compileScalarCmp(path, op string, v any) (string, []any, error) {
	switch tv := v.(type) {
	case bool:
		lit := "false"
		if tv {
			lit = "true"
		}
		return "JSON_EXTRACT(data, ?) " + op + " CAST(? AS JSON)", []any{path, lit}, nil
	case string:
		return "JSON_UNQUOTE(JSON_EXTRACT(data, ?)) " + op + " ?", []any{path, tv}, nil
	default:
		return "JSON_EXTRACT(data, ?) " + op + " ?", []any{path, v}, nil
	}
}

// likePattern builds a case-insensitive contains pattern, escaping LIKE
// metacharacters in the needle.
func likePattern(s string) string {
	s = strings.ToLower(s)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// containsPattern escapes LIKE metacharacters without case folding.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// buildRangeSQL renders a Range as WHERE fragments plus the ordering and
// pagination tail. Rows always come back ascending by idx.
func buildRangeSQL(rng query.Range) (conds []string, args []any, tail string) {
	rng = rng.Normalize()

	if rng.After != nil {
		conds = append(conds, "created_at > ?")
		args = append(args, rng.After.UTC())
	}
	if rng.Before != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, rng.Before.UTC())
	}
	if rng.AfterIndex != nil {
		conds = append(conds, "idx > ?")
		args = append(args, *rng.AfterIndex)
	}
	if rng.BeforeIndex != nil {
		conds = append(conds, "idx < ?")
		args = append(args, *rng.BeforeIndex)
	}

	tail = " ORDER BY idx ASC"
	switch {
	case rng.Limit > 0:
		tail += fmt.Sprintf(" LIMIT %d OFFSET %d", rng.Limit, rng.Offset)
	case rng.Offset > 0:
		// MySQL's OFFSET needs a row count; the manual's idiom for "all
		// remaining rows" is the largest possible value.
		tail += fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", rng.Offset)
	}
	return conds, args, tail
}
