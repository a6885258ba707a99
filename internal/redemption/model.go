package redemption

import "time"

// Method selects the channel funds leave through.
type Method string

const (
	MethodWallet          Method = "wallet"
	MethodCashOut         Method = "cash_out"
	MethodBankTransfer    Method = "bank_transfer"
	MethodMerchantPayment Method = "merchant_payment"
)

// ValidMethod reports whether m is a recognised redemption method.
func ValidMethod(m Method) bool {
	switch m {
	case MethodWallet, MethodCashOut, MethodBankTransfer, MethodMerchantPayment:
		return true
	}
	return false
}

// Status of a redemption transaction. A transaction is immutable once terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons carried on failed transactions.
const (
	ReasonInvalidVerification    = "invalid_verification"
	ReasonTargetNotRedeemable    = "target_not_redeemable"
	ReasonDestinationUnavailable = "destination_unavailable"
	ReasonInsufficientFunds      = "insufficient_funds"
	ReasonUpstreamUnavailable    = "upstream_unavailable"
	ReasonIntegrityViolation     = "integrity_violation"
)

// Transaction records one redemption attempt. Its ID is the idempotency key:
// replaying the key returns this record's terminal state instead of moving
// money again.
type Transaction struct {
	ID                  string
	SubjectID           string
	VoucherID           string
	SourceWalletID      string
	DestinationWalletID string
	Destination         string
	Method              Method
	Amount              int64
	VerificationTokenID string
	Status              Status
	FailureReason       string
	RailReference       string
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// Terminal reports whether the transaction reached a final status.
func (t Transaction) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
