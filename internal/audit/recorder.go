package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
)

// Recorder writes audit entries without ever failing the triggering operation.
// A store outage is escalated through the notifier instead of propagating.
type Recorder struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, notifier notification.Notifier, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Record appends an entry, assigning ID and timestamp when absent. The
// signature is deliberately error-free so callers cannot abort a redemption
// or reconciliation because the audit store was unreachable.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}

	err := r.store.Append(ctx, entry)
	if err == nil {
		return
	}

	r.logger.Error("audit append failed", "type", entry.Type, "actor", entry.Actor, "error", err)
	alert := notification.Message{
		Kind:        notification.KindAuditFailure,
		Destination: "compliance-ops",
		Body:        fmt.Sprintf("audit entry %s (%s) was not persisted", entry.ID, entry.Type),
	}
	if sendErr := r.notifier.Send(ctx, alert); sendErr != nil {
		r.logger.Error("audit failure alert not delivered", "error", sendErr)
	}
}

// List exposes stored entries for report generation.
func (r *Recorder) List(ctx context.Context, entryType string, from, to time.Time) ([]Entry, error) {
	return r.store.ListByType(ctx, entryType, from, to)
}
