package report

import "time"

// MonthlyStatistics is the regulator-facing aggregate for one calendar month.
// It is always recomputed from persisted records, never incrementally
// mutated, so corrections to underlying data before finalization are
// reflected on regeneration. Amounts are minor currency units.
type MonthlyStatistics struct {
	Month string `json:"month"`

	RedemptionsCompleted int64 `json:"redemptionsCompleted"`
	RedemptionsValue     int64 `json:"redemptionsValue"`
	RedemptionsFailed    int64 `json:"redemptionsFailed"`

	CompliantDays      int64   `json:"compliantDays"`
	DeficientDays      int64   `json:"deficientDays"`
	WorstCoverageRatio float64 `json:"worstCoverageRatio"`

	DormantWallets int64 `json:"dormantWallets"`
	DormantValue   int64 `json:"dormantValue"`
	ReleasedCount  int64 `json:"releasedCount"`
	ReleasedValue  int64 `json:"releasedValue"`

	TotalChecks              int64   `json:"totalChecks"`
	FailedChecks             int64   `json:"failedChecks"`
	EstimatedDowntimeMinutes float64 `json:"estimatedDowntimeMinutes"`
	AvailabilityPercent      float64 `json:"availabilityPercent"`

	GeneratedAt time.Time `json:"generatedAt"`
}
