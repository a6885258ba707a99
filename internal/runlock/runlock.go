package runlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired indicates another process currently holds the lock.
var ErrNotAcquired = errors.New("run lock held elsewhere")

// unlockScript deletes the lock only when the stored token matches, so a
// holder whose TTL lapsed cannot release a lock re-acquired by someone else.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a Redis-backed mutual exclusion token for scheduled jobs. Exactly
// one instance runs a given job even when the service is deployed replicated.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New builds a lock for the named job.
func New(client *redis.Client, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    "runlock:v1:" + name,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire claims the lock or returns ErrNotAcquired. The TTL bounds how long
// a crashed holder can block other instances.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Release drops the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
