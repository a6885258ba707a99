package reconciliation

import (
	"context"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

// TrustBalanceProvider reads the segregated trust account's balance. The real
// implementation calls the custodian bank's API; it is an external
// collaborator behind a timeout.
type TrustBalanceProvider interface {
	TrustBalance(ctx context.Context) (int64, time.Time, error)
}

// MirrorProvider reports the trust balance as the sum of e-money liabilities.
// It stands in until the custodian bank API is connected, which makes every
// run read exactly 100% covered. Operator-entered balances via the reconcile
// endpoint are the authoritative path in the meantime.
type MirrorProvider struct {
	wallets wallet.Repository
}

// NewMirrorProvider builds the placeholder provider.
func NewMirrorProvider(wallets wallet.Repository) *MirrorProvider {
	return &MirrorProvider{wallets: wallets}
}

// TrustBalance sums outstanding liabilities.
func (p *MirrorProvider) TrustBalance(ctx context.Context) (int64, time.Time, error) {
	total, err := p.wallets.SumLiabilities(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	return total, time.Now().UTC(), nil
}

// StaticProvider returns a fixed balance; used in tests.
type StaticProvider struct {
	Balance int64
	AsOf    time.Time
}

// TrustBalance returns the configured balance.
func (p StaticProvider) TrustBalance(context.Context) (int64, time.Time, error) {
	asOf := p.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return p.Balance, asOf, nil
}
