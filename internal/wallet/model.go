package wallet

import "time"

// DormancyState tracks where a wallet sits in the PSD-3 §11.4 lifecycle.
// Transitions are strictly forward within a cycle; an inbound transaction
// starts a fresh cycle at Active.
type DormancyState string

const (
	StateActive    DormancyState = "active"
	StateWarned    DormancyState = "warned"
	StateDormant   DormancyState = "dormant"
	StateHeld      DormancyState = "held"
	StateReleased  DormancyState = "released"
	StateEscheated DormancyState = "escheated"
)

// Wallet is a stored-value account whose balance is an outstanding e-money
// liability until released or escheated. Balance is in minor currency units.
type Wallet struct {
	ID                 string
	OwnerID            string
	Balance            int64
	Currency           string
	LastTransactionAt  time.Time
	DormancyState      DormancyState
	WarningSentAt      *time.Time
	DormantSince       *time.Time
	HeldSince          *time.Time
	PrimaryBankAccount string
	// RedemptionsHalted is set when a compensating reversal failed; the
	// wallet stays frozen for automated redemption until an operator clears it.
	RedemptionsHalted bool
	Version           int64
	CreatedAt         time.Time
}

// LiabilityStates are the dormancy states whose balances count toward
// outstanding e-money liabilities. Held funds remain customer money until the
// cycle ends in Released or Escheated.
func LiabilityStates() []DormancyState {
	return []DormancyState{StateActive, StateWarned, StateDormant, StateHeld}
}
