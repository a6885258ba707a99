package runlock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAcquireIsExclusive(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	holder := New(client, "daily-job", time.Minute)
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	contender := New(client, "daily-job", time.Minute)
	if err := contender.Acquire(ctx); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	if err := holder.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := contender.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	holder := New(client, "daily-job", time.Minute)
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A stranger releasing must not free the holder's lock.
	stranger := New(client, "daily-job", time.Minute)
	if err := stranger.Release(ctx); err != nil {
		t.Fatalf("stranger release: %v", err)
	}
	if err := stranger.Acquire(ctx); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected lock still held, got %v", err)
	}
}

func TestDifferentJobsDoNotContend(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	a := New(client, "job-a", time.Minute)
	b := New(client, "job-b", time.Minute)
	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
}
