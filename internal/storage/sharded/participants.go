package sharded

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/types"
)

type participantStore struct {
	s *Store
}

var _ storage.ParticipantStore = (*participantStore)(nil)

func (ps *participantStore) Create(ctx context.Context, p *types.Participant) (*types.Participant, error) {
	ord := ps.s.shardFor(p.ID)
	created, err := ps.s.shards[ord].Participants().Create(ctx, p)
	if err != nil {
		return nil, err
	}
	created.RowIndex = globalIndex(created.RowIndex, ord)
	return created, nil
}

func (ps *participantStore) GetByID(ctx context.Context, id string) (*types.Participant, error) {
	ord := ps.s.shardFor(id)
	p, err := ps.s.shards[ord].Participants().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.RowIndex = globalIndex(p.RowIndex, ord)
	return p, nil
}

// GetByToken fans out to every shard; tokens carry no routing information.
func (ps *participantStore) GetByToken(ctx context.Context, token string) (*types.Participant, error) {
	if token == "" {
		return nil, fmt.Errorf("get participant by token: %w", storage.ErrNotFound)
	}

	found := make([]*types.Participant, len(ps.s.shards))
	err := ps.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		p, err := b.Participants().GetByToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		p.RowIndex = globalIndex(p.RowIndex, ord)
		found[ord] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		if p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("get participant by token: %w", storage.ErrNotFound)
}

func (ps *participantStore) GetAll(ctx context.Context, rng query.Range) ([]*types.Participant, error) {
	return ps.Find(ctx, nil, rng)
}

func (ps *participantStore) Find(ctx context.Context, pred query.Node, rng query.Range) ([]*types.Participant, error) {
	parts := make([][]*types.Participant, len(ps.s.shards))
	err := ps.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		rows, err := b.Participants().Find(ctx, pred, localRange(rng, ord))
		if err != nil {
			return err
		}
		for _, p := range rows {
			p.RowIndex = globalIndex(p.RowIndex, ord)
		}
		parts[ord] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := mergeByIndex(parts, func(p *types.Participant) int64 { return p.RowIndex })
	return applyWindow(merged, rng), nil
}

func (ps *participantStore) Update(ctx context.Context, id string, updates map[string]any) (*types.Participant, error) {
	ord := ps.s.shardFor(id)
	p, err := ps.s.shards[ord].Participants().Update(ctx, id, updates)
	if err != nil {
		return nil, err
	}
	p.RowIndex = globalIndex(p.RowIndex, ord)
	return p, nil
}

func (ps *participantStore) Delete(ctx context.Context, id string) (bool, error) {
	return ps.s.shards[ps.s.shardFor(id)].Participants().Delete(ctx, id)
}

func (ps *participantStore) Count(ctx context.Context) (int, error) {
	counts := make([]int, len(ps.s.shards))
	err := ps.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		n, err := b.Participants().Count(ctx)
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

// FindIDsBySubstring fans out and concatenates in shard order. The
// allocator only needs the full candidate set, not a global ordering.
func (ps *participantStore) FindIDsBySubstring(ctx context.Context, substr string) ([]string, error) {
	parts := make([][]string, len(ps.s.shards))
	err := ps.s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		ids, err := b.Participants().FindIDsBySubstring(ctx, substr)
		if err != nil {
			return err
		}
		parts[ord] = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ids := range parts {
		out = append(out, ids...)
	}
	return out, nil
}
