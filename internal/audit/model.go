package audit

import "time"

// Entry types recorded by the compliance components.
const (
	TypeTrustDeficiency     = "trust_account_deficiency"
	TypeReconciliation      = "reconciliation"
	TypeReconciliationStale = "reconciliation_stale_reads"
	TypeDormancyTransition  = "dormancy_transition"
	TypeRedemption          = "redemption"
	TypeIntegrityViolation  = "integrity_violation"
	TypeFeeRejected         = "dormant_fee_rejected"
)

// Entry is an append-only compliance audit record. Entries are never mutated
// or deleted; retention is handled outside this service (five-year minimum).
type Entry struct {
	ID        string
	Type      string
	Actor     string
	Timestamp time.Time
	Payload   map[string]any
	Result    string
}
