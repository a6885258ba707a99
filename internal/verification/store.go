package verification

import (
	"context"
	"time"
)

// Store persists step-up tokens. Absence of a token is a normal outcome and is
// reported through the boolean results, never as an error.
type Store interface {
	Put(ctx context.Context, token Token, ttl time.Duration) error
	Get(ctx context.Context, subjectID, tokenID string) (Token, bool, error)
	// ConsumeIfValid atomically checks that the token exists, is unconsumed
	// and matches the expected context, and marks it consumed. Two concurrent
	// calls can never both return true.
	ConsumeIfValid(ctx context.Context, subjectID, tokenID string, expected Context) (bool, error)
	// Consume marks a token consumed. Consuming an absent or already-consumed
	// token is a no-op so caller retries stay safe.
	Consume(ctx context.Context, subjectID, tokenID string) error
}
