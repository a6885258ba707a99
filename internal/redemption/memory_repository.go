package redemption

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	storage map[string]Transaction
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Transaction)}
}

func (r *memoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[tx.ID]; exists {
		return ErrDuplicateKey
	}
	r.storage[tx.ID] = tx
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.storage[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepository) Finalize(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[tx.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != StatusPending {
		return nil
	}
	r.storage[tx.ID] = tx
	return nil
}

func (r *memoryRepository) ListRecent(_ context.Context, limit int) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txs := make([]Transaction, 0, len(r.storage))
	for _, tx := range r.storage {
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (r *memoryRepository) TotalsInRange(_ context.Context, from, to time.Time) (MonthlyTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var totals MonthlyTotals
	for _, tx := range r.storage {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		switch tx.Status {
		case StatusCompleted:
			totals.CompletedCount++
			totals.CompletedValue += tx.Amount
		case StatusFailed:
			totals.FailedCount++
		}
	}
	return totals, nil
}
