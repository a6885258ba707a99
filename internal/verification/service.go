package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/identity"
)

// TokenService issues and validates step-up tokens gating money movement.
//
// Policy: strict single-use. Reusing a token within its expiry window would be
// more convenient for customers, but it loses the guarantee that two
// transactions can never share one proof of intent.
type TokenService struct {
	users identity.Repository
	store Store
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewTokenService builds a token service.
func NewTokenService(users identity.Repository, store Store, ttl time.Duration, logger *slog.Logger) *TokenService {
	return &TokenService{users: users, store: store, ttl: ttl, log: logger, now: time.Now}
}

// Issue mints a token bound to one transaction context. The subject must have
// step-up credentials enabled.
func (s *TokenService) Issue(ctx context.Context, subjectID string, tc Context) (Token, error) {
	user, err := s.users.FindByID(ctx, subjectID)
	if err != nil {
		return Token{}, err
	}
	if !user.StepUpEnabled {
		return Token{}, ErrStepUpNotEnabled
	}

	issuedAt := s.now().UTC()
	token := Token{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Context:   tc,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}
	if err := s.store.Put(ctx, token, s.ttl); err != nil {
		return Token{}, err
	}
	return token, nil
}

// Validate reports whether the token exists, is unconsumed, unexpired and
// matches the expected context. It fails closed: unknown tokens and store
// outages both read as invalid, never as errors the caller must branch on.
func (s *TokenService) Validate(ctx context.Context, subjectID, tokenID string, expected Context) bool {
	token, ok, err := s.store.Get(ctx, subjectID, tokenID)
	if err != nil {
		s.log.Error("token lookup failed, failing closed", "subject", subjectID, "error", err)
		return false
	}
	if !ok || token.Consumed {
		return false
	}
	if s.now().After(token.ExpiresAt) {
		return false
	}
	return token.Context == expected
}

// ValidateAndConsume is the one-shot gate used by redemption: it validates and
// marks the token consumed atomically so concurrent requests cannot both pass.
func (s *TokenService) ValidateAndConsume(ctx context.Context, subjectID, tokenID string, expected Context) bool {
	ok, err := s.store.ConsumeIfValid(ctx, subjectID, tokenID, expected)
	if err != nil {
		s.log.Error("token consume failed, failing closed", "subject", subjectID, "error", err)
		return false
	}
	return ok
}

// Consume marks a token consumed; repeated calls are no-ops.
func (s *TokenService) Consume(ctx context.Context, subjectID, tokenID string) error {
	return s.store.Consume(ctx, subjectID, tokenID)
}
