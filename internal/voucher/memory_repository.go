package voucher

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Voucher
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Voucher)}
}

func (r *memoryRepository) Create(_ context.Context, v Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[v.ID]; exists {
		return errors.New("voucher exists")
	}
	r.storage[v.ID] = v
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.storage[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return v, nil
}

func (r *memoryRepository) Update(_ context.Context, v Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[v.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != v.Version {
		return ErrVersionConflict
	}
	v.Version++
	r.storage[v.ID] = v
	return nil
}
