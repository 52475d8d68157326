package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Record)}
}

// Save inserts or replaces a record, keeping the original CreatedAt.
func (r *MemoryRepo) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.data[rec.ID]; ok && !existing.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	r.data[rec.ID] = rec
	return nil
}

// Get returns an unexpired record.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[id]
	if !ok || (!rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt)) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes a record. Missing records are not an error.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
	return nil
}

// DeleteExpired removes records whose ExpiresAt is before now.
func (r *MemoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, rec := range r.data {
		if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now) {
			delete(r.data, id)
			removed++
		}
	}
	return removed, nil
}
