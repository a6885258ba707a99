package reconciliation

import "time"

// Status of a reconciliation run against the 100% reserve requirement.
type Status string

const (
	StatusCompliant Status = "compliant"
	StatusDeficient Status = "deficient"
)

// Snapshot captures the two reads of one reconciliation run. Immutable once
// captured; each side carries its own timestamp so staleness is observable.
type Snapshot struct {
	TrustBalance  int64
	Liabilities   int64
	BalanceAt     time.Time
	LiabilitiesAt time.Time
}

// Staleness is the gap between the two reads.
func (s Snapshot) Staleness() time.Duration {
	d := s.LiabilitiesAt.Sub(s.BalanceAt)
	if d < 0 {
		d = -d
	}
	return d
}

// Record is the persisted outcome of one reconciliation day, upserted by date.
type Record struct {
	ID               string
	Date             time.Time
	TrustBalance     int64
	Liabilities      int64
	CoverageRatio    float64
	DeficiencyAmount int64
	Status           Status
	ReconciledBy     string
	StaleReads       bool
	CreatedAt        time.Time
}

// StatusSummary is the pure read served by GetStatus; it never triggers a run.
type StatusSummary struct {
	IsCompliant            bool
	CoverageRatio          float64
	DeficiencyAmount       int64
	LastReconciliationDate time.Time
}
