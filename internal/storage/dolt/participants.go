package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

const participantCols = "id, created_at, data, embedding, auth_token, idx"

type participantStore struct {
	s *Store
}

var _ storage.ParticipantStore = (*participantStore)(nil)

// Create inserts a participant row. The id must be caller-supplied; the
// allocator owns participant id generation.
func (ps *participantStore) Create(ctx context.Context, p *types.Participant) (*types.Participant, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	data, err := storage.EncodeParticipantData(p)
	if err != nil {
		return nil, err
	}

	res, err := ps.s.db.ExecContext(ctx,
		`INSERT INTO participants (id, created_at, data, embedding, auth_token) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.CreatedAt.UTC(), string(data), p.Embedding, nullIfEmpty(p.AuthToken))
	if err != nil {
		return nil, wrapDBError("create participant", err)
	}

	if idx, err := res.LastInsertId(); err == nil {
		p.RowIndex = idx
	}
	return p, nil
}

func (ps *participantStore) GetByID(ctx context.Context, id string) (*types.Participant, error) {
	row := ps.s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get participant %s", id), err)
	}
	return p, nil
}

func (ps *participantStore) GetByToken(ctx context.Context, token string) (*types.Participant, error) {
	if token == "" {
		return nil, wrapDBError("get participant by token", sql.ErrNoRows)
	}
	row := ps.s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE auth_token = ?`, token)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapDBError("get participant by token", err)
	}
	return p, nil
}

func (ps *participantStore) GetAll(ctx context.Context, rng query.Range) ([]*types.Participant, error) {
	return ps.Find(ctx, nil, rng)
}

func (ps *participantStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Participant, error) {
	where, args, err := compileNode(pred)
	if err != nil {
		return nil, fmt.Errorf("find participants: %w", err)
	}
	rangeConds, rangeArgs, tail := buildRangeSQL(rng)

	conds := append([]string{where}, rangeConds...)
	args = append(args, rangeArgs...)

	q := `SELECT ` + participantCols + ` FROM participants WHERE ` + strings.Join(conds, " AND ") + tail
	rows, err := ps.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDBError("find participants", err)
	}
	defer rows.Close()

	var out []*types.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, wrapDBError("scan participant", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("find participants", err)
	}
	return out, nil
}

// Update merges keys into the row under SELECT ... FOR UPDATE so concurrent
// updates cannot interleave their read-modify-write sequences. The row
// index never changes.
func (ps *participantStore) Update(ctx context.Context, id string, updates map[string]any) (*types.Participant, error) {
	tx, err := ps.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("update participant: begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id = ? FOR UPDATE`, id)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("update participant %s", id), err)
	}

	if err := storage.ApplyParticipantUpdates(p, updates); err != nil {
		return nil, fmt.Errorf("update participant %s: %w", id, err)
	}

	data, err := storage.EncodeParticipantData(p)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET data = ?, embedding = ?, auth_token = ? WHERE id = ?`,
		string(data), p.Embedding, nullIfEmpty(p.AuthToken), id); err != nil {
		return nil, wrapDBError(fmt.Sprintf("update participant %s", id), err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("update participant: commit", err)
	}
	committed = true
	return p, nil
}

func (ps *participantStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := ps.s.db.ExecContext(ctx, `DELETE FROM participants WHERE id = ?`, id)
	if err != nil {
		return false, wrapDBError(fmt.Sprintf("delete participant %s", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("delete participant", err)
	}
	return n > 0, nil
}

func (ps *participantStore) Count(ctx context.Context) (int, error) {
	var n int
	err := ps.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&n)
	if err != nil {
		return 0, wrapDBError("count participants", err)
	}
	return n, nil
}

// FindIDsBySubstring returns ids containing substr. Matching follows the
// column collation; callers needing exact shapes filter the result.
func (ps *participantStore) FindIDsBySubstring(ctx context.Context, substr string) ([]string, error) {
	rows, err := ps.s.db.QueryContext(ctx,
		`SELECT id FROM participants WHERE id LIKE ? ESCAPE '\\' ORDER BY idx ASC`,
		containsPattern(substr))
	if err != nil {
		return nil, wrapDBError("find participant ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan participant id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("find participant ids", err)
	}
	return ids, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(r rowScanner) (*types.Participant, error) {
	var (
		p         types.Participant
		data      []byte
		embedding []byte
		token     sql.NullString
	)
	if err := r.Scan(&p.ID, &p.CreatedAt, &data, &embedding, &token, &p.RowIndex); err != nil {
		return nil, err
	}
	if err := storage.DecodeParticipantData(data, &p); err != nil {
		return nil, err
	}
	p.Embedding = embedding
	if token.Valid {
		p.AuthToken = token.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
