package audit

import (
	"context"
	"time"
)

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByType(ctx context.Context, entryType string, from, to time.Time) ([]Entry, error)
}
