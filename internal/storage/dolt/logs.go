package dolt

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

type logStore struct {
	s *Store
}

var _ storage.LogStore = (*logStore)(nil)

// Create appends a log row to the journal. An empty id gets a generated
// one; an empty level is stored as info.
func (ls *logStore) Create(ctx context.Context, e *types.LogEntry) (*types.LogEntry, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = types.LogInfo
	}

	data, err := storage.EncodeLogData(e)
	if err != nil {
		return nil, err
	}

	res, err := ls.s.db.ExecContext(ctx,
		`INSERT INTO logs (id, created_at, data) VALUES (?, ?, ?)`,
		e.ID, e.CreatedAt.UTC(), string(data))
	if err != nil {
		return nil, wrapDBError("create log", err)
	}
	if idx, err := res.LastInsertId(); err == nil {
		e.RowIndex = idx
	}
	return e, nil
}

func (ls *logStore) GetByID(ctx context.Context, id string) (*types.LogEntry, error) {
	row := ls.s.db.QueryRowContext(ctx,
		`SELECT `+journalCols+` FROM logs WHERE id = ?`, id)
	e, err := scanLog(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get log %s", id), err)
	}
	return e, nil
}

func (ls *logStore) GetAll(ctx context.Context, rng query.Range) ([]*types.LogEntry, error) {
	return ls.Find(ctx, nil, rng)
}

func (ls *logStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.LogEntry, error) {
	where, args, err := compileNode(pred)
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	rangeConds, rangeArgs, tail := buildRangeSQL(rng)

	conds := append([]string{where}, rangeConds...)
	args = append(args, rangeArgs...)

	q := `SELECT ` + journalCols + ` FROM logs WHERE ` + strings.Join(conds, " AND ") + tail
	rows, err := ls.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("find logs", err)
	}
	defer rows.Close()

	var out []*types.LogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, wrapDBError("scan log", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("find logs", err)
	}
	return out, nil
}

func (ls *logStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ls.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, wrapDBError("count logs", err)
	}
	return n, nil
}

func scanLog(r rowScanner) (*types.LogEntry, error) {
	var (
		e    types.LogEntry
		data []byte
	)
	if err := r.Scan(&e.ID, &e.CreatedAt, &data, &e.RowIndex); err != nil {
		return nil, err
	}
	if err := storage.DecodeLogData(data, &e); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
