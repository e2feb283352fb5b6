// Package sharded implements the journal backend as a hash-routed set of
// SQLite shards, spreading write contention across separate database files.
//
// Each row lives on exactly one shard, chosen by FNV-1a over its id. Row
// indexes returned to callers are synthesized from the shard-local index
// and the shard ordinal, so they stay globally unique and globally
// ascending per shard; scans merge the per-shard streams back into one
// ordered result.
package sharded

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/agoralabs/agora/internal/query"
	"github.com/agoralabs/agora/internal/storage"
	"github.com/agoralabs/agora/internal/storage/sqlite"
)

// DefaultShardCount is used when the caller does not pick a shard count.
const DefaultShardCount = 4

// shardBits is the width of the shard ordinal inside a synthesized row
// index: global = local<<shardBits | ordinal. Ordering by the synthesized
// value is exactly ordering by (local index, shard ordinal).
const shardBits = 16

const maxShards = 1 << shardBits

// Store implements storage.Backend over a fixed set of shards.
type Store struct {
	shards []storage.Backend
	closed atomic.Bool

	participants *participantStore
	actions      *actionStore
	logs         *logStore
}

var _ storage.Backend = (*Store)(nil)

// Open creates or opens shardCount SQLite shards under dir, named
// shard-0.db through shard-N.db. The count must stay the same across
// opens of the same directory; rows do not rebalance.
func Open(ctx context.Context, dir string, shardCount int) (*Store, error) {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	if shardCount > maxShards {
		return nil, fmt.Errorf("shard count %d exceeds maximum %d", shardCount, maxShards)
	}

	backends := make([]storage.Backend, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		b, err := sqlite.Open(ctx, filepath.Join(dir, fmt.Sprintf("shard-%d.db", i)))
		if err != nil {
			for _, opened := range backends {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open shard %d: %w", i, err)
		}
		backends = append(backends, b)
	}
	return NewFromBackends(backends)
}

// NewFromBackends wraps pre-opened backends as shards. Shard ordinals
// follow slice order and become part of row indexes, so the order must
// stay stable across process restarts.
func NewFromBackends(backends []storage.Backend) (*Store, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one shard is required")
	}
	if len(backends) > maxShards {
		return nil, fmt.Errorf("shard count %d exceeds maximum %d", len(backends), maxShards)
	}
	s := &Store{shards: backends}
	s.participants = &participantStore{s}
	s.actions = &actionStore{s}
	s.logs = &logStore{s}
	return s, nil
}

// shardFor routes an id to its shard ordinal.
func (s *Store) shardFor(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(s.shards)))
}

// globalIndex synthesizes the caller-visible row index from a shard-local
// index and the shard ordinal.
func globalIndex(local int64, ord int) int64 {
	return local<<shardBits | int64(ord)
}

// splitIndex recovers the shard-local index and ordinal from a
// synthesized index.
func splitIndex(global int64) (local int64, ord int) {
	return global >> shardBits, int(global & (maxShards - 1))
}

// localRange rewrites a caller Range for one shard. Offset and Limit are
// applied after the merge, so each shard returns enough rows to cover the
// whole window; index cursors decode to exact per-shard bounds.
func localRange(rng query.Range, ord int) query.Range {
	out := rng.Normalize()
	if out.Limit > 0 {
		out.Limit += out.Offset
	}
	out.Offset = 0

	if rng.AfterIndex != nil {
		local, cursorOrd := splitIndex(*rng.AfterIndex)
		bound := local
		if ord > cursorOrd {
			// Rows at the cursor's local index on a later shard sort
			// after the cursor, so they stay in.
			bound = local - 1
		}
		out.AfterIndex = &bound
	}
	if rng.BeforeIndex != nil {
		local, cursorOrd := splitIndex(*rng.BeforeIndex)
		bound := local
		if ord < cursorOrd {
			bound = local + 1
		}
		out.BeforeIndex = &bound
	}
	return out
}

// mergeByIndex merges per-shard slices, each already ascending by row
// index, into one ascending slice.
func mergeByIndex[T any](parts [][]T, index func(T) int64) []T {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]T, 0, total)
	heads := make([]int, len(parts))

	for {
		best := -1
		var bestIdx int64
		for i, p := range parts {
			if heads[i] >= len(p) {
				continue
			}
			if idx := index(p[heads[i]]); best == -1 || idx < bestIdx {
				best, bestIdx = i, idx
			}
		}
		if best == -1 {
			return out
		}
		out = append(out, parts[best][heads[best]])
		heads[best]++
	}
}

// applyWindow applies the caller's Offset and Limit to a merged result.
func applyWindow[T any](rows []T, rng query.Range) []T {
	rng = rng.Normalize()
	if rng.Offset > 0 {
		if rng.Offset >= len(rows) {
			return nil
		}
		rows = rows[rng.Offset:]
	}
	if rng.Limit > 0 && len(rows) > rng.Limit {
		rows = rows[:rng.Limit]
	}
	return rows
}

// fanOut runs fn once per shard and fails on the first error.
func (s *Store) fanOut(ctx context.Context, fn func(ctx context.Context, ord int, b storage.Backend) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, b := range s.shards {
		g.Go(func() error { return fn(ctx, i, b) })
	}
	return g.Wait()
}

// Participants returns the participants table.
func (s *Store) Participants() storage.ParticipantStore { return s.participants }

// Actions returns the actions journal.
func (s *Store) Actions() storage.ActionStore { return s.actions }

// Logs returns the logs journal.
func (s *Store) Logs() storage.LogStore { return s.logs }

// ShardCount reports the number of shards.
func (s *Store) ShardCount() int { return len(s.shards) }

// Ping verifies every shard is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.fanOut(ctx, func(ctx context.Context, ord int, b storage.Backend) error {
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("shard %d: %w", ord, err)
		}
		return nil
	})
}

// Close closes every shard. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	for i, b := range s.shards {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
