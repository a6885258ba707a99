package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/logging"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
)

type brokenStore struct{}

func (brokenStore) Append(context.Context, Entry) error {
	return errors.New("connection refused")
}

func (brokenStore) ListByType(context.Context, string, time.Time, time.Time) ([]Entry, error) {
	return nil, errors.New("connection refused")
}

type captureNotifier struct {
	msgs []notification.Message
}

func (n *captureNotifier) Send(_ context.Context, m notification.Message) error {
	n.msgs = append(n.msgs, m)
	return nil
}

func TestRecordEscalatesStoreOutage(t *testing.T) {
	notifier := &captureNotifier{}
	recorder := NewRecorder(brokenStore{}, notifier, logging.Discard())

	// Record has no error return on purpose; a store outage must not reach
	// the caller. The outage surfaces as an alert instead.
	recorder.Record(context.Background(), Entry{
		Type:  TypeRedemption,
		Actor: "subject-1",
	})

	if len(notifier.msgs) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.msgs))
	}
	if notifier.msgs[0].Kind != notification.KindAuditFailure {
		t.Fatalf("expected audit failure alert, got %s", notifier.msgs[0].Kind)
	}
}

func TestRecordStampsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store, &captureNotifier{}, logging.Discard())

	before := time.Now().UTC()
	recorder.Record(context.Background(), Entry{Type: TypeRedemption, Actor: "subject-1"})

	entries, err := store.ListByType(context.Background(), TypeRedemption, before.Add(-time.Minute), before.Add(time.Minute))
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].Timestamp.IsZero() {
		t.Fatalf("expected assigned id and timestamp, got %+v", entries[0])
	}
}
