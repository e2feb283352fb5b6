package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

const journalCols = "id, created_at, data, rowid"

type actionStore struct {
	s *Store
}

var _ storage.ActionStore = (*actionStore)(nil)

// Create appends one action row to the journal. An empty id gets a
// generated one. The row is immutable once written.
func (as *actionStore) Create(ctx context.Context, a *types.Action) (*types.Action, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	data, err := storage.EncodeActionData(a)
	if err != nil {
		return nil, err
	}

	release, err := as.s.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := as.s.db.ExecContext(ctx,
		`INSERT INTO actions (id, created_at, data) VALUES (?, ?, ?)`,
		a.ID, a.CreatedAt, string(data))
	if err != nil {
		return nil, wrapDBError("create action", err)
	}
	if idx, err := res.LastInsertId(); err == nil {
		a.RowIndex = idx
	}
	return a, nil
}

func (as *actionStore) GetByID(ctx context.Context, id string) (*types.Action, error) {
	row := as.s.db.QueryRowContext(ctx,
		`SELECT `+journalCols+` FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get action %s", id), err)
	}
	return a, nil
}

func (as *actionStore) GetAll(ctx context.Context, rng query.Range) ([]*types.Action, error) {
	return as.Find(ctx, nil, rng)
}

func (as *actionStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Action, error) {
	where, args, err := compileNode(pred)
	if err != nil {
		return nil, fmt.Errorf("find actions: %w", err)
	}
	rangeConds, rangeArgs, tail := buildRangeSQL(rng)

	conds := append([]string{where}, rangeConds...)
	args = append(args, rangeArgs...)

	q := `SELECT ` + journalCols + ` FROM actions WHERE ` + strings.Join(conds, " AND ") + tail
	rows, err := as.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("find actions", err)
	}
	defer rows.Close()

	var out []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, wrapDBError("scan action", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("find actions", err)
	}
	return out, nil
}

func (as *actionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := as.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n); err != nil {
		return 0, wrapDBError("count actions", err)
	}
	return n, nil
}

func scanAction(r rowScanner) (*types.Action, error) {
	var (
		a    types.Action
		data []byte
	)
	if err := r.Scan(&a.ID, &a.CreatedAt, &data, &a.RowIndex); err != nil {
		return nil, err
	}
	if err := storage.DecodeActionData(data, &a); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
