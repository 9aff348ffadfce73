package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/backstop/internal/infra/storage"
)

// DefaultCapacity bounds the number of entries kept by NewJournalRepo.
const DefaultCapacity = 1000

// JournalRepo is an in-process JournalRepository. The oldest entries are
// evicted once capacity is reached.
type JournalRepo struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]storage.JournalEntry
	order    []string // oldest first
}

func NewJournalRepo(capacity int) *JournalRepo {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &JournalRepo{
		capacity: capacity,
		entries:  make(map[string]storage.JournalEntry),
	}
}

func (r *JournalRepo) Record(ctx context.Context, e storage.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.CID]; ok {
		r.remove(e.CID)
	}
	r.entries[e.CID] = e
	r.order = append(r.order, e.CID)

	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
	}
	return nil
}

func (r *JournalRepo) Get(ctx context.Context, cid string) (*storage.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[cid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]storage.JournalEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}
	out := make([]storage.JournalEntry, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[r.order[i]])
	}
	return out, nil
}

func (r *JournalRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	deleted := 0
	for _, cid := range r.order {
		if r.entries[cid].OccurredAt.Before(threshold) {
			delete(r.entries, cid)
			deleted++
			continue
		}
		kept = append(kept, cid)
	}
	r.order = kept
	return deleted, nil
}

// remove drops cid from the order slice. Caller holds the lock.
func (r *JournalRepo) remove(cid string) {
	for i, id := range r.order {
		if id == cid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

var _ storage.JournalRepository = (*JournalRepo)(nil)
