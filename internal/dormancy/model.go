package dormancy

import "time"

// Release methods for recovering held funds (PSD-3 §11.4.5).
const (
	ReleaseToBankAccount = "return_to_primary_bank_account"
	ReleaseToCustomer    = "return_to_customer"
	ReleaseToSender      = "return_to_sender"
	ReleaseToHolding     = "deposit_to_holding_account"
)

// Notification records a dormancy warning sent to a customer. At most one
// outstanding notification exists per wallet per dormancy cycle.
type Notification struct {
	WalletID            string
	SentAt              time.Time
	ThresholdDaysAtSend int
}

// Report is the monthly regulator-facing summary (PSD-3 §11.4.6). Amounts are
// minor currency units. Regenerating a month overwrites the prior report.
type Report struct {
	Month          string // YYYY-MM
	DormantCount   int64
	DormantValue   int64
	ReleasedCount  int64
	ReleasedValue  int64
	EscheatedCount int64
	EscheatedValue int64
	GeneratedAt    time.Time
}

// ProcessingCounts summarizes one daily run for observability.
type ProcessingCounts struct {
	Warned    int `json:"warned"`
	Dormant   int `json:"dormant"`
	Held      int `json:"held"`
	Released  int `json:"released"`
	Escheated int `json:"escheated"`
}

// Thresholds exposes the configured lifecycle boundaries.
type Thresholds struct {
	WarningDays  int `json:"warningDays"`
	DormancyDays int `json:"dormancyDays"`
	HoldDays     int `json:"holdDays"`
}
