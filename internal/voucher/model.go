package voucher

import "time"

// Status of a voucher. A voucher moves Available→Redeemed exactly once, or
// Available→Expired when its expiry passes unredeemed.
type Status string

const (
	StatusAvailable Status = "available"
	StatusRedeemed  Status = "redeemed"
	StatusExpired   Status = "expired"
)

// Voucher is a single-use, amount-bearing credential created by an external
// disbursement event. Amount is in minor currency units.
type Voucher struct {
	ID         string
	OwnerID    string
	Amount     int64
	Currency   string
	Status     Status
	ExpiryDate *time.Time
	RedeemedAt *time.Time
	Version    int64
	CreatedAt  time.Time
}

// Redeemable reports whether the voucher can still be redeemed at the instant.
func (v Voucher) Redeemable(now time.Time) bool {
	if v.Status != StatusAvailable {
		return false
	}
	if v.ExpiryDate != nil && now.After(*v.ExpiryDate) {
		return false
	}
	return true
}
