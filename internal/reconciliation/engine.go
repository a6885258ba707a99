package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/audit"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/notification"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/wallet"
)

// Engine performs the daily comparison of the trust account balance against
// outstanding e-money liabilities (PSD-3 §11.2.4: 100% coverage, reconciled
// daily, deficiencies addressed within one business day).
type Engine struct {
	records  Repository
	wallets  wallet.Repository
	provider TrustBalanceProvider
	audit    *audit.Recorder
	notifier notification.Notifier

	toleranceCents  int64
	maxStaleness    time.Duration
	upstreamTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewEngine constructs a reconciliation engine.
func NewEngine(records Repository, wallets wallet.Repository, provider TrustBalanceProvider,
	recorder *audit.Recorder, notifier notification.Notifier,
	toleranceCents int64, maxStaleness, upstreamTimeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		records:         records,
		wallets:         wallets,
		provider:        provider,
		audit:           recorder,
		notifier:        notifier,
		toleranceCents:  toleranceCents,
		maxStaleness:    maxStaleness,
		upstreamTimeout: upstreamTimeout,
		logger:          logger,
		now:             time.Now,
	}
}

// RunInput parameterizes one reconciliation run.
type RunInput struct {
	AsOf         time.Time
	ReconciledBy string
	// TrustBalance, when set, is an operator-entered bank statement figure
	// that overrides the provider read.
	TrustBalance *int64
}

// Run captures a snapshot, computes coverage and upserts the day's record.
// Re-running the same day overwrites the prior record. A shortfall beyond the
// tolerance is a genuine deficiency: it is persisted, audited and alerted,
// never silently corrected.
func (e *Engine) Run(ctx context.Context, input RunInput) (Record, error) {
	snapshot, err := e.capture(ctx, input.TrustBalance)
	if err != nil {
		return Record{}, err
	}

	reconciledBy := input.ReconciledBy
	if reconciledBy == "" {
		reconciledBy = "system"
	}

	shortfall := snapshot.Liabilities - snapshot.TrustBalance
	deficient := shortfall > e.toleranceCents

	stale := snapshot.Staleness() > e.maxStaleness
	if stale {
		// Reads this far apart cannot be trusted to describe one instant;
		// treat the run as a deficiency signal rather than ignoring it.
		deficient = true
	}

	ratio := 1.0
	if snapshot.Liabilities > 0 {
		ratio = float64(snapshot.TrustBalance) / float64(snapshot.Liabilities)
	}

	rec := Record{
		ID:            uuid.NewString(),
		Date:          truncateToDay(input.AsOf),
		TrustBalance:  snapshot.TrustBalance,
		Liabilities:   snapshot.Liabilities,
		CoverageRatio: ratio,
		Status:        StatusCompliant,
		ReconciledBy:  reconciledBy,
		StaleReads:    stale,
		CreatedAt:     e.now().UTC(),
	}
	if deficient {
		rec.Status = StatusDeficient
		if shortfall > 0 {
			rec.DeficiencyAmount = shortfall
		}
	}

	if err := e.records.UpsertByDate(ctx, rec); err != nil {
		return Record{}, err
	}

	if stale {
		e.audit.Record(ctx, audit.Entry{
			Type:  audit.TypeReconciliationStale,
			Actor: reconciledBy,
			Payload: map[string]any{
				"date":          rec.Date.Format("2006-01-02"),
				"staleness_ms":  snapshot.Staleness().Milliseconds(),
				"max_stale_ms":  e.maxStaleness.Milliseconds(),
				"trust_balance": snapshot.TrustBalance,
				"liabilities":   snapshot.Liabilities,
			},
			Result: string(rec.Status),
		})
	}

	if rec.Status == StatusDeficient {
		e.audit.Record(ctx, audit.Entry{
			Type:  audit.TypeTrustDeficiency,
			Actor: reconciledBy,
			Payload: map[string]any{
				"date":              rec.Date.Format("2006-01-02"),
				"trust_balance":     rec.TrustBalance,
				"liabilities":       rec.Liabilities,
				"deficiency_amount": rec.DeficiencyAmount,
				"coverage_ratio":    rec.CoverageRatio,
			},
			Result: string(StatusDeficient),
		})
		if err := e.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDeficiencyAlert,
			Destination: "compliance-ops",
			Body:        fmt.Sprintf("trust account deficiency of %d minor units on %s", rec.DeficiencyAmount, rec.Date.Format("2006-01-02")),
		}); err != nil {
			e.logger.Error("deficiency alert not delivered", "error", err)
		}
	} else {
		e.audit.Record(ctx, audit.Entry{
			Type:  audit.TypeReconciliation,
			Actor: reconciledBy,
			Payload: map[string]any{
				"date":           rec.Date.Format("2006-01-02"),
				"coverage_ratio": rec.CoverageRatio,
			},
			Result: string(StatusCompliant),
		})
	}

	return rec, nil
}

// Status is a pure read of the most recent record; it never triggers a run.
func (e *Engine) Status(ctx context.Context) (StatusSummary, error) {
	rec, err := e.records.Latest(ctx)
	if err != nil {
		return StatusSummary{}, err
	}
	return StatusSummary{
		IsCompliant:            rec.Status == StatusCompliant,
		CoverageRatio:          rec.CoverageRatio,
		DeficiencyAmount:       rec.DeficiencyAmount,
		LastReconciliationDate: rec.Date,
	}, nil
}

// History lists records over the trailing number of days.
func (e *Engine) History(ctx context.Context, days int) ([]Record, error) {
	from := truncateToDay(e.now().UTC().AddDate(0, 0, -days))
	return e.records.ListSince(ctx, from)
}

// capture reads both sides of the snapshot, bounding the bank read by the
// upstream timeout. The liability sum is taken immediately after so the
// staleness window stays observable.
func (e *Engine) capture(ctx context.Context, override *int64) (Snapshot, error) {
	var snapshot Snapshot
	if override != nil {
		snapshot.TrustBalance = *override
		snapshot.BalanceAt = e.now().UTC()
	} else {
		readCtx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
		defer cancel()
		balance, asOf, err := e.provider.TrustBalance(readCtx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read trust balance: %w", err)
		}
		snapshot.TrustBalance = balance
		snapshot.BalanceAt = asOf
	}

	liabilities, err := e.wallets.SumLiabilities(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sum liabilities: %w", err)
	}
	snapshot.Liabilities = liabilities
	snapshot.LiabilitiesAt = e.now().UTC()
	return snapshot, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
