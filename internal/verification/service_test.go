package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/identity"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/logging"
)

func newRedisService(t *testing.T, ttl time.Duration) (*TokenService, *miniredis.Miniredis, identity.User) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := identity.NewMemoryRepository()
	user := identity.User{ID: uuid.NewString(), Phone: "+264811234567", StepUpEnabled: true, CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	return NewTokenService(repo, NewRedisStore(client), ttl, logging.Discard()), mr, user
}

func TestIssueRequiresStepUp(t *testing.T) {
	svc, _, _ := newRedisService(t, 5*time.Minute)

	repo := identity.NewMemoryRepository()
	disabled := identity.User{ID: uuid.NewString(), Phone: "+264810000000", StepUpEnabled: false}
	if err := repo.Create(context.Background(), disabled); err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc.users = repo

	if _, err := svc.Issue(context.Background(), disabled.ID, Context{Type: "redemption:wallet", Amount: 1000}); !errors.Is(err, ErrStepUpNotEnabled) {
		t.Fatalf("expected ErrStepUpNotEnabled, got %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	svc, _, user := newRedisService(t, 5*time.Minute)
	ctx := context.Background()
	tc := Context{Type: "redemption:wallet", Amount: 50000, TargetID: "voucher-1"}

	token, err := svc.Issue(ctx, user.ID, tc)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if !svc.ValidateAndConsume(ctx, user.ID, token.ID, tc) {
		t.Fatalf("expected first consume to succeed")
	}
	if svc.ValidateAndConsume(ctx, user.ID, token.ID, tc) {
		t.Fatalf("expected second consume to fail")
	}
	if svc.Validate(ctx, user.ID, token.ID, tc) {
		t.Fatalf("consumed token must not validate")
	}
}

func TestConsumeRejectsContextMismatch(t *testing.T) {
	svc, _, user := newRedisService(t, 5*time.Minute)
	ctx := context.Background()
	tc := Context{Type: "redemption:cash_out", Amount: 50000, TargetID: "wallet-1"}

	token, err := svc.Issue(ctx, user.ID, tc)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	wrongAmount := tc
	wrongAmount.Amount = 40000
	if svc.ValidateAndConsume(ctx, user.ID, token.ID, wrongAmount) {
		t.Fatalf("mismatched amount must not consume")
	}
	wrongTarget := tc
	wrongTarget.TargetID = "wallet-2"
	if svc.ValidateAndConsume(ctx, user.ID, token.ID, wrongTarget) {
		t.Fatalf("mismatched target must not consume")
	}

	// A failed match must not burn the token.
	if !svc.ValidateAndConsume(ctx, user.ID, token.ID, tc) {
		t.Fatalf("expected matching consume to still succeed")
	}
}

func TestTokenExpires(t *testing.T) {
	ttl := 300 * time.Second
	svc, mr, user := newRedisService(t, ttl)
	ctx := context.Background()
	tc := Context{Type: "redemption:wallet", Amount: 1000, TargetID: "voucher-1"}

	token, err := svc.Issue(ctx, user.ID, tc)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mr.FastForward(ttl + time.Second)

	if svc.Validate(ctx, user.ID, token.ID, tc) {
		t.Fatalf("expired token must not validate")
	}
	if svc.ValidateAndConsume(ctx, user.ID, token.ID, tc) {
		t.Fatalf("expired token must not consume")
	}
}

func TestUnknownTokenFailsClosed(t *testing.T) {
	svc, _, user := newRedisService(t, 5*time.Minute)
	tc := Context{Type: "redemption:wallet", Amount: 1000}

	if svc.Validate(context.Background(), user.ID, uuid.NewString(), tc) {
		t.Fatalf("unknown token must not validate")
	}
}
