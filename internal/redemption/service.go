package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/rail"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/verification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/voucher"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

var (
	// ErrInFlight indicates the same idempotency key is being processed right
	// now; the caller should retry shortly to observe the terminal state.
	ErrInFlight = errors.New("duplicate request currently processing")
	// ErrBadRequest indicates the request was malformed before any execution.
	ErrBadRequest = errors.New("invalid redemption request")
)

const (
	defaultRailAttempts = 3
	defaultRailBackoff  = 250 * time.Millisecond
)

// Service executes redemptions exactly once per idempotency key. The debit
// side (voucher claim or wallet debit) always commits before the credit side;
// a failure in between triggers a compensating reversal, never a half-applied
// transfer.
type Service struct {
	repo     Repository
	vouchers voucher.Repository
	wallets  *wallet.Service
	tokens   *verification.TokenService
	rail     rail.Rail
	audit    *audit.Recorder
	notifier notification.Notifier
	locks    *keyedLock

	upstreamTimeout time.Duration
	railAttempts    int
	railBackoff     time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewService constructs a redemption service.
func NewService(repo Repository, vouchers voucher.Repository, wallets *wallet.Service,
	tokens *verification.TokenService, railConn rail.Rail, recorder *audit.Recorder,
	notifier notification.Notifier, upstreamTimeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:            repo,
		vouchers:        vouchers,
		wallets:         wallets,
		tokens:          tokens,
		rail:            railConn,
		audit:           recorder,
		notifier:        notifier,
		locks:           newKeyedLock(),
		upstreamTimeout: upstreamTimeout,
		railAttempts:    defaultRailAttempts,
		railBackoff:     defaultRailBackoff,
		logger:          logger,
		now:             time.Now,
	}
}

// Request captures one logical redemption attempt. IdempotencyKey is the
// stable identity of the attempt: resubmitting it returns the original
// terminal result.
type Request struct {
	SubjectID           string
	IdempotencyKey      string
	VoucherID           string
	SourceWalletID      string
	DestinationWalletID string
	Destination         string
	Method              Method
	Amount              int64
	VerificationTokenID string
}

func (r Request) targetID() string {
	if r.VoucherID != "" {
		return r.VoucherID
	}
	return r.SourceWalletID
}

// VerificationContext is the transaction context a step-up token must have
// been issued for to authorize this request.
func (r Request) VerificationContext() verification.Context {
	return verification.Context{
		Type:     "redemption:" + string(r.Method),
		Amount:   r.Amount,
		TargetID: r.targetID(),
	}
}

func (r Request) validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key required", ErrBadRequest)
	}
	if r.SubjectID == "" {
		return fmt.Errorf("%w: subject required", ErrBadRequest)
	}
	if !ValidMethod(r.Method) {
		return fmt.Errorf("%w: unknown method %q", ErrBadRequest, r.Method)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	}
	if r.VoucherID == "" && r.SourceWalletID == "" {
		return fmt.Errorf("%w: voucher or source wallet required", ErrBadRequest)
	}
	if r.Method == MethodWallet && r.DestinationWalletID == "" {
		return fmt.Errorf("%w: destination wallet required", ErrBadRequest)
	}
	if r.Method != MethodWallet && r.VoucherID == "" && r.Destination == "" {
		return fmt.Errorf("%w: external destination required", ErrBadRequest)
	}
	return nil
}

// Redeem performs the redemption. Business failures come back as a Failed
// transaction with a reason, not as an error; errors are reserved for
// malformed input and infrastructure faults.
func (s *Service) Redeem(ctx context.Context, req Request) (Transaction, error) {
	if err := req.validate(); err != nil {
		return Transaction{}, err
	}

	s.locks.lock("key:" + req.IdempotencyKey)
	defer s.locks.unlock("key:" + req.IdempotencyKey)

	if existing, err := s.repo.Get(ctx, req.IdempotencyKey); err == nil {
		if existing.Terminal() {
			return existing, nil
		}
		return Transaction{}, ErrInFlight
	} else if !errors.Is(err, ErrNotFound) {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:                  req.IdempotencyKey,
		SubjectID:           req.SubjectID,
		VoucherID:           req.VoucherID,
		SourceWalletID:      req.SourceWalletID,
		DestinationWalletID: req.DestinationWalletID,
		Destination:         req.Destination,
		Method:              req.Method,
		Amount:              req.Amount,
		VerificationTokenID: req.VerificationTokenID,
		Status:              StatusPending,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Another instance claimed the key between Get and Create.
			return Transaction{}, ErrInFlight
		}
		return Transaction{}, err
	}

	if !s.tokens.ValidateAndConsume(ctx, req.SubjectID, req.VerificationTokenID, req.VerificationContext()) {
		return s.fail(ctx, tx, ReasonInvalidVerification), nil
	}

	s.locks.lock("target:" + req.targetID())
	defer s.locks.unlock("target:" + req.targetID())

	if req.VoucherID != "" {
		return s.redeemVoucher(ctx, tx, req)
	}
	return s.redeemFromWallet(ctx, tx, req)
}

// redeemVoucher claims the voucher (the debit) before crediting the chosen
// destination. A failed credit reverts the claim.
func (s *Service) redeemVoucher(ctx context.Context, tx Transaction, req Request) (Transaction, error) {
	v, err := s.vouchers.Get(ctx, req.VoucherID)
	if err != nil {
		if errors.Is(err, voucher.ErrNotFound) {
			return s.fail(ctx, tx, ReasonTargetNotRedeemable), nil
		}
		return Transaction{}, err
	}
	now := s.now().UTC()
	if v.OwnerID != req.SubjectID || v.Amount != req.Amount || !v.Redeemable(now) {
		return s.fail(ctx, tx, ReasonTargetNotRedeemable), nil
	}

	v.Status = voucher.StatusRedeemed
	v.RedeemedAt = &now
	if err := s.vouchers.Update(ctx, v); err != nil {
		if errors.Is(err, voucher.ErrVersionConflict) {
			// A concurrent redemption won the claim.
			return s.fail(ctx, tx, ReasonTargetNotRedeemable), nil
		}
		return Transaction{}, err
	}

	reason, railRef := s.credit(ctx, req)
	if reason != "" {
		if revertErr := s.revertVoucher(ctx, req.VoucherID); revertErr != nil {
			return s.integrityFailure(ctx, tx, "", fmt.Sprintf("voucher %s stuck redeemed after failed credit", req.VoucherID)), nil
		}
		return s.fail(ctx, tx, reason), nil
	}
	return s.complete(ctx, tx, railRef), nil
}

// redeemFromWallet debits the source wallet before crediting the destination.
// A failed credit refunds the debit; a failed refund halts the wallet.
func (s *Service) redeemFromWallet(ctx context.Context, tx Transaction, req Request) (Transaction, error) {
	w, err := s.wallets.Get(ctx, req.SourceWalletID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return s.fail(ctx, tx, ReasonTargetNotRedeemable), nil
		}
		return Transaction{}, err
	}
	if w.OwnerID != req.SubjectID {
		return s.fail(ctx, tx, ReasonTargetNotRedeemable), nil
	}

	if _, err := s.wallets.Debit(ctx, req.SourceWalletID, req.Amount); err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			return s.fail(ctx, tx, ReasonInsufficientFunds), nil
		case errors.Is(err, wallet.ErrRedemptionsHalted):
			return s.fail(ctx, tx, ReasonIntegrityViolation), nil
		default:
			return Transaction{}, err
		}
	}

	reason, railRef := s.credit(ctx, req)
	if reason != "" {
		if _, refundErr := s.wallets.Credit(ctx, req.SourceWalletID, req.Amount); refundErr != nil {
			return s.integrityFailure(ctx, tx, req.SourceWalletID,
				fmt.Sprintf("debit of wallet %s not reversed after failed credit", req.SourceWalletID)), nil
		}
		return s.fail(ctx, tx, reason), nil
	}
	return s.complete(ctx, tx, railRef), nil
}

// credit applies the destination side. It returns a failure reason ("" on
// success) and the rail reference when an external rail was used.
func (s *Service) credit(ctx context.Context, req Request) (string, string) {
	if req.Method == MethodWallet {
		if _, err := s.wallets.Credit(ctx, req.DestinationWalletID, req.Amount); err != nil {
			return ReasonDestinationUnavailable, ""
		}
		return "", ""
	}

	// Transient rail failures get a bounded number of attempts with backoff
	// before the transaction is finalized as failed. The payout reference is
	// the idempotency key, so re-executing after a timeout cannot pay twice.
	payout := rail.Payout{
		Method:      string(req.Method),
		Destination: req.Destination,
		Amount:      req.Amount,
		Reference:   req.IdempotencyKey,
	}
	backoff := s.railBackoff
	for attempt := 1; ; attempt++ {
		railCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
		receipt, err := s.rail.Execute(railCtx, payout)
		cancel()
		if err == nil {
			return "", receipt.Reference
		}
		if attempt >= s.railAttempts {
			// A timed-out rail call is never assumed to have succeeded.
			return ReasonUpstreamUnavailable, ""
		}
		s.logger.Warn("rail execute failed, retrying",
			"attempt", attempt, "method", string(req.Method), "error", err)
		select {
		case <-ctx.Done():
			return ReasonUpstreamUnavailable, ""
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *Service) revertVoucher(ctx context.Context, voucherID string) error {
	v, err := s.vouchers.Get(ctx, voucherID)
	if err != nil {
		return err
	}
	v.Status = voucher.StatusAvailable
	v.RedeemedAt = nil
	return s.vouchers.Update(ctx, v)
}

func (s *Service) complete(ctx context.Context, tx Transaction, railRef string) Transaction {
	now := s.now().UTC()
	tx.Status = StatusCompleted
	tx.RailReference = railRef
	tx.CompletedAt = &now
	if err := s.repo.Finalize(ctx, tx); err != nil {
		s.logger.Error("finalize completed redemption", "id", tx.ID, "error", err)
	}
	s.audit.Record(ctx, audit.Entry{
		Type:  audit.TypeRedemption,
		Actor: tx.SubjectID,
		Payload: map[string]any{
			"idempotency_key": tx.ID,
			"method":          string(tx.Method),
			"amount":          tx.Amount,
			"voucher_id":      tx.VoucherID,
		},
		Result: string(StatusCompleted),
	})
	return tx
}

func (s *Service) fail(ctx context.Context, tx Transaction, reason string) Transaction {
	now := s.now().UTC()
	tx.Status = StatusFailed
	tx.FailureReason = reason
	tx.CompletedAt = &now
	if err := s.repo.Finalize(ctx, tx); err != nil {
		s.logger.Error("finalize failed redemption", "id", tx.ID, "error", err)
	}
	return tx
}

// integrityFailure records a reversal that did not apply. The affected wallet
// is frozen until manual reconciliation clears it.
func (s *Service) integrityFailure(ctx context.Context, tx Transaction, walletID, detail string) Transaction {
	if walletID != "" {
		if err := s.wallets.HaltRedemptions(ctx, walletID); err != nil {
			s.logger.Error("halt redemptions", "wallet", walletID, "error", err)
		}
	}
	s.audit.Record(ctx, audit.Entry{
		Type:  audit.TypeIntegrityViolation,
		Actor: tx.SubjectID,
		Payload: map[string]any{
			"idempotency_key": tx.ID,
			"wallet_id":       walletID,
			"detail":          detail,
		},
		Result: "halted",
	})
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindIntegrityAlert,
		Destination: "compliance-ops",
		Body:        detail,
	}); err != nil {
		s.logger.Error("integrity alert not delivered", "error", err)
	}
	return s.fail(ctx, tx, ReasonIntegrityViolation)
}

// Get returns the transaction for an idempotency key.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

// Recent lists the latest transactions for dashboards.
func (s *Service) Recent(ctx context.Context, limit int) ([]Transaction, error) {
	return s.repo.ListRecent(ctx, limit)
}
