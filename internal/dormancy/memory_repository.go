package dormancy

import (
	"context"
	"sync"
)

type memoryNotificationRepository struct {
	mu   sync.Mutex
	sent []Notification
}

// NewMemoryNotificationRepository constructs an in-memory notification log for tests.
func NewMemoryNotificationRepository() *memoryNotificationRepository {
	return &memoryNotificationRepository{}
}

func (r *memoryNotificationRepository) Record(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns the notifications recorded so far.
func (r *memoryNotificationRepository) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

type memoryReportRepository struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewMemoryReportRepository constructs an in-memory report store for tests.
func NewMemoryReportRepository() ReportRepository {
	return &memoryReportRepository{reports: make(map[string]Report)}
}

func (r *memoryReportRepository) UpsertByMonth(_ context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[rep.Month] = rep
	return nil
}

func (r *memoryReportRepository) GetByMonth(_ context.Context, month string) (Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[month]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return rep, nil
}
