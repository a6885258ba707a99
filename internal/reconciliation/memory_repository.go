package reconciliation

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Record // keyed by date (YYYY-MM-DD)
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Record)}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (r *memoryRepository) UpsertByDate(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[dateKey(rec.Date)] = rec
	return nil
}

func (r *memoryRepository) Latest(_ context.Context) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.storage) == 0 {
		return Record{}, ErrNoRecords
	}
	var latest Record
	for _, rec := range r.storage {
		if rec.Date.After(latest.Date) {
			latest = rec
		}
	}
	return latest, nil
}

func (r *memoryRepository) ListSince(_ context.Context, from time.Time) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var recs []Record
	for _, rec := range r.storage {
		if rec.Date.Before(from) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.After(recs[j].Date) })
	return recs, nil
}
