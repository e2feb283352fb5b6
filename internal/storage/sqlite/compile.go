package sqlite

import (
	"fmt"
	"strings"

	"github.com/agoralabs/agora/internal/query"
)

// compileNode compiles a predicate tree to a SQLite WHERE fragment over
// the data column. JSON paths are bound as parameters, never interpolated.
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
		return "json_extract(data, ?) = ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpNe:
		// SQL NULL propagation already excludes rows missing the path.
		return "json_extract(data, ?) != ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpGt:
		return "json_extract(data, ?) > ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpGte:
		return "json_extract(data, ?) >= ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpLt:
		return "json_extract(data, ?) < ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpLte:
		return "json_extract(data, ?) <= ?", []any{path, normalizeValue(c.Value)}, nil
	case query.OpIn, query.OpNotIn:
		vs, ok := c.Value.([]any)
		if !ok || len(vs) == 0 {
			return "", nil, fmt.Errorf("%s on %q requires a non-empty value list", c.Op, c.Path)
		}
		placeholders := strings.Repeat("?,", len(vs)-1) + "?"
		kw := "IN"
		if c.Op == query.OpNotIn {
			kw = "NOT IN"
		}
		args := make([]any, 0, len(vs)+1)
		args = append(args, path)
		for _, v := range vs {
			args = append(args, normalizeValue(v))
		}
		return fmt.Sprintf("json_extract(data, ?) %s (%s)", kw, placeholders), args, nil
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
		clause := fmt.Sprintf("LOWER(CAST(json_extract(data, ?) AS TEXT)) %s ? ESCAPE '\\'", kw)
		return clause, []any{path, likePattern(s)}, nil
	case query.OpIsNull:
		// json_extract returns SQL NULL for both a missing path and an
		// explicit JSON null, which is exactly the contract.
		return "json_extract(data, ?) IS NULL", []any{path}, nil
	case query.OpNotNull:
		return "json_extract(data, ?) IS NOT NULL", []any{path}, nil
	default:
		return "", nil, fmt.Errorf("unknown operator %v on %q", c.Op, c.Path)
	}
}

// normalizeValue maps Go values onto what json_extract yields in SQLite:
// JSON booleans surface as integers 0/1.
func normalizeValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// likePattern builds a case-insensitive contains pattern, escaping LIKE
// metacharacters in the needle.
func likePattern(s string) string {
	s = strings.ToLower(s)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// buildRangeSQL renders a Range as WHERE fragments plus the ordering and
// pagination tail. Rows always come back ascending by row index.
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
		conds = append(conds, "rowid > ?")
		args = append(args, *rng.AfterIndex)
	}
	if rng.BeforeIndex != nil {
		conds = append(conds, "rowid < ?")
		args = append(args, *rng.BeforeIndex)
	}

	tail = " ORDER BY rowid ASC"
	switch {
	case rng.Limit > 0:
		tail += fmt.Sprintf(" LIMIT %d OFFSET %d", rng.Limit, rng.Offset)
	case rng.Offset > 0:
		// SQLite requires a LIMIT clause to use OFFSET; -1 means unbounded.
		tail += fmt.Sprintf(" LIMIT -1 OFFSET %d", rng.Offset)
	}
	return conds, args, tail
}
