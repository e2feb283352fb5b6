package sharded

import (
	"context"

	"github.com/google/uuid"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

type actionStore struct {
	s *Store
}

var _ storage.ActionStore = (*actionStore)(nil)

// Create routes by the action id, generating one first when absent so the
// router and the shard agree on the row's home.
func (as *actionStore) Create(ctx context.Context, a *types.Action) (*types.Action, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ord := as.s.shardFor(a.ID)
	created, err := as.s.shards[ord].Actions().Create(ctx, a)
	if err != nil {
		return nil, err
	}
	created.RowIndex = globalIndex(created.RowIndex, ord)
	return created, nil
}

func (as *actionStore) GetByID(ctx context.Context, id string) (*types.Action, error) {
	ord := as.s.shardFor(id)
	a, err := as.s.shards[ord].Actions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.RowIndex = globalIndex(a.RowIndex, ord)
	return a, nil
}

func (as *actionStore) GetAll(ctx context.Context, rng query.Range) ([]*types.Action, error) {
	return as.Find(ctx, nil, rng)
}

func (as *actionStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Action, error) {
	parts := make([][]*types.Action, len(as.s.shards))
	err := as.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		rows, err := b.Actions().Find(ctx, pred, localRange(rng, ord))
		if err != nil {
			return err
		}
		for _, a := range rows {
			a.RowIndex = globalIndex(a.RowIndex, ord)
		}
		parts[ord] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := mergeByIndex(parts, func(a *types.Action) int64 { return a.RowIndex })
	return applyWindow(merged, rng), nil
}

func (as *actionStore) Count(ctx context.Context) (int, error) {
	counts := make([]int, len(as.s.shards))
	err := as.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		n, err := b.Actions().Count(ctx)
		if err != nil {
			return err
		}
		counts[ord] = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

type logStore struct {
	s *Store
}

var _ storage.LogStore = (*logStore)(nil)

func (ls *logStore) Create(ctx context.Context, e *types.LogEntry) (*types.LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	ord := ls.s.shardFor(e.ID)
	created, err := ls.s.shards[ord].Logs().Create(ctx, e)
	if err != nil {
		return nil, err
	}
	created.RowIndex = globalIndex(created.RowIndex, ord)
	return created, nil
}

func (ls *logStore) GetByID(ctx context.Context, id string) (*types.LogEntry, error) {
	ord := ls.s.shardFor(id)
	e, err := ls.s.shards[ord].Logs().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.RowIndex = globalIndex(e.RowIndex, ord)
	return e, nil
}

func (ls *logStore) GetAll(ctx context.Context, rng query.Range) ([]*types.LogEntry, error) {
	return ls.Find(ctx, nil, rng)
}

func (ls *logStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.LogEntry, error) {
	parts := make([][]*types.LogEntry, len(ls.s.shards))
	err := ls.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		rows, err := b.Logs().Find(ctx, pred, localRange(rng, ord))
		if err != nil {
			return err
		}
		for _, e := range rows {
			e.RowIndex = globalIndex(e.RowIndex, ord)
		}
		parts[ord] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := mergeByIndex(parts, func(e *types.LogEntry) int64 { return e.RowIndex })
	return applyWindow(merged, rng), nil
}

func (ls *logStore) Count(ctx context.Context) (int, error) {
	counts := make([]int, len(ls.s.shards))
	err := ls.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		n, err := b.Logs().Count(ctx)
		if err != nil {
			return err
		}
		counts[ord] = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
