package rail

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable indicates the rail did not answer in time or rejected the
// attempt transiently. Callers treat it as retryable and must never assume the
// payout happened.
var ErrUnavailable = errors.New("payment rail unavailable")

// Payout describes an outbound movement off the e-money book: cash-out at an
// agent, a bank transfer, or a merchant payment.
type Payout struct {
	Method      string
	Destination string
	Amount      int64
	Currency    string
	Reference   string
}

// Receipt captures the rail's acknowledgement.
type Receipt struct {
	Reference string
	Status    string
}

// Rail is the connector to the external ledger-execution / bank-transfer
// provider. The wire protocol is the provider's concern, not specified here.
type Rail interface {
	Execute(ctx context.Context, payout Payout) (Receipt, error)
}

// StaticRail simulates a successful rail integration.
type StaticRail struct{}

// Execute approves the payout with a synthetic reference, honoring ctx so
// callers' timeouts still apply.
func (StaticRail) Execute(ctx context.Context, _ Payout) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, ErrUnavailable
	}
	return Receipt{Reference: uuid.NewString(), Status: "accepted"}, nil
}
