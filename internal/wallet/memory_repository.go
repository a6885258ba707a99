package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[w.ID]; exists {
		return errors.New("wallet exists")
	}
	r.storage[w.ID] = w
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) Update(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[w.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != w.Version {
		return ErrVersionConflict
	}
	w.Version++
	r.storage[w.ID] = w
	return nil
}

func (r *memoryRepository) ListByState(_ context.Context, state DormancyState) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Wallet
	for _, w := range r.storage {
		if w.DormancyState == state {
			out = append(out, w)
		}
	}
	sortByLastTx(out)
	return out, nil
}

func (r *memoryRepository) ListInactiveSince(_ context.Context, states []DormancyState, cutoff time.Time) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Wallet
	for _, w := range r.storage {
		if !stateIn(w.DormancyState, states) {
			continue
		}
		if w.LastTransactionAt.After(cutoff) {
			continue
		}
		out = append(out, w)
	}
	sortByLastTx(out)
	return out, nil
}

func (r *memoryRepository) ListHeldSince(_ context.Context, cutoff time.Time) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Wallet
	for _, w := range r.storage {
		if w.DormancyState != StateHeld || w.HeldSince == nil {
			continue
		}
		if w.HeldSince.After(cutoff) {
			continue
		}
		out = append(out, w)
	}
	sortByLastTx(out)
	return out, nil
}

func (r *memoryRepository) SumLiabilities(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	states := LiabilityStates()
	for _, w := range r.storage {
		if stateIn(w.DormancyState, states) {
			total += w.Balance
		}
	}
	return total, nil
}

func stateIn(state DormancyState, states []DormancyState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func sortByLastTx(wallets []Wallet) {
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].LastTransactionAt.Before(wallets[j].LastTransactionAt)
	})
}
