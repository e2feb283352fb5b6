package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/agoralabs/agora/internal/storage"
)

// MaxAllocRetries bounds how many times the register flow re-allocates
// after an insert collision before failing hard. Collisions mean an
// external writer is racing the allocator on the same base.
const MaxAllocRetries = 5

// Allocator hands out participant ids of the form base-N. Counters
// live in memory behind a per-base lock; the participant table is the
// source of truth, so the first allocation for a base scans existing
// ids and seeds the counter with the smallest unused N.
type Allocator struct {
	participants storage.ParticipantStore

	mu    sync.Mutex
	bases map[string]*baseCounter
}

type baseCounter struct {
	mu     sync.Mutex
	seeded bool
	next   int
}

// NewAllocator returns an Allocator over participants.
func NewAllocator(participants storage.ParticipantStore) *Allocator {
	return &Allocator{
		participants: participants,
		bases:        map[string]*baseCounter{},
	}
}

// Allocate returns the next candidate id for base. The id is not
// reserved: the caller must create the row and, on
// storage.ErrDuplicateID, call Forget and allocate again, up to
// MaxAllocRetries.
func (a *Allocator) Allocate(ctx context.Context, base string) (string, error) {
	bc := a.base(base)
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if !bc.seeded {
		next, err := a.seed(ctx, base)
		if err != nil {
			return "", err
		}
		bc.next = next
		bc.seeded = true
	}

	id := fmt.Sprintf("%s-%d", base, bc.next)
	bc.next++
	return id, nil
}

// Forget drops the cached counter for base so the next Allocate
// rescans the table.
func (a *Allocator) Forget(base string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bases, base)
}

func (a *Allocator) base(base string) *baseCounter {
	a.mu.Lock()
	defer a.mu.Unlock()
	bc, ok := a.bases[base]
	if !ok {
		bc = &baseCounter{}
		a.bases[base] = bc
	}
	return bc
}

// seed scans existing ids of exact shape base-<int> and returns the
// smallest non-negative integer not in use.
func (a *Allocator) seed(ctx context.Context, base string) (int, error) {
	ids, err := a.participants.FindIDsBySubstring(ctx, base)
	if err != nil {
		return 0, fmt.Errorf("seeding allocator for %q: %w", base, err)
	}

	used := make(map[int]bool, len(ids))
	prefix := base + "-"
	for _, id := range ids {
		rest, ok := strings.CutPrefix(id, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			continue
		}
		used[n] = true
	}

	n := 0
	for used[n] {
		n++
	}
	return n, nil
}
