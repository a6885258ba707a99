package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
)

var (
	// ErrInsufficientFunds occurs when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDormantWalletFee rejects fee charges against dormant or held wallets.
	// PSD-3 §11.4.3 forbids fees on dormant wallets; the rejection is explicit,
	// never a silent skip.
	ErrDormantWalletFee = errors.New("fee charge rejected: wallet is dormant")
	// ErrRedemptionsHalted indicates the wallet is frozen pending manual review.
	ErrRedemptionsHalted = errors.New("wallet redemptions halted pending review")
)

const casRetries = 3

// Service owns wallet balance and metadata mutations. Dormancy state changes
// flow through the dormancy machine; everything money-touching lands here.
type Service struct {
	repo  Repository
	audit *audit.Recorder
	now   func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, audit: recorder, now: time.Now}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID            string
	Currency           string
	PrimaryBankAccount string
}

// Create provisions an active wallet with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}
	currency := input.Currency
	if currency == "" {
		currency = "NAD"
	}
	now := s.now().UTC()
	w := Wallet{
		ID:                 uuid.NewString(),
		OwnerID:            input.OwnerID,
		Currency:           currency,
		LastTransactionAt:  now,
		DormancyState:      StateActive,
		PrimaryBankAccount: input.PrimaryBankAccount,
		CreatedAt:          now,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// Credit adds funds. Receiving a transaction restarts the dormancy cycle, so a
// warned, dormant or released wallet re-enters Active.
func (s *Service) Credit(ctx context.Context, walletID string, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, errors.New("amount must be positive")
	}
	return s.mutate(ctx, walletID, func(w *Wallet) error {
		w.Balance += amount
		w.LastTransactionAt = s.now().UTC()
		switch w.DormancyState {
		case StateActive, StateWarned, StateDormant, StateReleased:
			s.reactivate(w)
		}
		return nil
	})
}

// Debit removes funds for a customer-initiated movement. Dormant wallets stay
// fully redeemable by their owner; only Held wallets are frozen.
func (s *Service) Debit(ctx context.Context, walletID string, amount int64) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, errors.New("amount must be positive")
	}
	return s.mutate(ctx, walletID, func(w *Wallet) error {
		if w.RedemptionsHalted {
			return ErrRedemptionsHalted
		}
		if w.DormancyState == StateHeld || w.DormancyState == StateEscheated {
			return ErrRedemptionsHalted
		}
		if w.Balance < amount {
			return ErrInsufficientFunds
		}
		w.Balance -= amount
		w.LastTransactionAt = s.now().UTC()
		s.reactivate(w)
		return nil
	})
}

// ChargeFee applies a maintenance or service fee. Fee charges against dormant
// or held wallets are rejected outright and the attempt is audited.
func (s *Service) ChargeFee(ctx context.Context, walletID string, amount int64, feeType string) (Wallet, error) {
	if amount <= 0 {
		return Wallet{}, errors.New("amount must be positive")
	}
	w, err := s.mutate(ctx, walletID, func(w *Wallet) error {
		if w.DormancyState == StateDormant || w.DormancyState == StateHeld {
			return ErrDormantWalletFee
		}
		if w.Balance < amount {
			return ErrInsufficientFunds
		}
		w.Balance -= amount
		// Fees are provider-initiated and do not reset the inactivity clock.
		return nil
	})
	if errors.Is(err, ErrDormantWalletFee) {
		s.audit.Record(ctx, audit.Entry{
			Type:  audit.TypeFeeRejected,
			Actor: "wallet-service",
			Payload: map[string]any{
				"wallet_id": walletID,
				"fee_type":  feeType,
				"amount":    amount,
			},
			Result: "rejected",
		})
	}
	return w, err
}

// HaltRedemptions freezes automated redemption against the wallet.
func (s *Service) HaltRedemptions(ctx context.Context, walletID string) error {
	_, err := s.mutate(ctx, walletID, func(w *Wallet) error {
		w.RedemptionsHalted = true
		return nil
	})
	return err
}

func (s *Service) reactivate(w *Wallet) {
	if w.DormancyState == StateActive {
		return
	}
	w.DormancyState = StateActive
	w.WarningSentAt = nil
	w.DormantSince = nil
	w.HeldSince = nil
}

// mutate loads the wallet, applies fn and writes it back under the version
// guard, retrying a bounded number of times when another writer won the race.
func (s *Service) mutate(ctx context.Context, walletID string, fn func(*Wallet) error) (Wallet, error) {
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		w, err := s.repo.Get(ctx, walletID)
		if err != nil {
			return Wallet{}, err
		}
		if err := fn(&w); err != nil {
			return Wallet{}, err
		}
		if err := s.repo.Update(ctx, w); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return Wallet{}, err
		}
		w.Version++
		return w, nil
	}
	return Wallet{}, lastErr
}
