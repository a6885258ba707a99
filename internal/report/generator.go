package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/dormancy"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/reconciliation"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/redemption"
)

// Generator assembles monthly statistics from the transactional stores. Every
// generation recomputes the full month from source records, so regenerating
// after a correction produces corrected figures.
type Generator struct {
	redemptions    redemption.Repository
	reconciliation reconciliation.Repository
	dormancy       dormancy.ReportRepository
	checks         CheckLog
	store          Repository
	log            *slog.Logger
	now            func() time.Time
}

// NewGenerator wires a statistics generator.
func NewGenerator(
	redemptions redemption.Repository,
	recon reconciliation.Repository,
	dormancyReports dormancy.ReportRepository,
	checks CheckLog,
	store Repository,
	log *slog.Logger,
) *Generator {
	return &Generator{
		redemptions:    redemptions,
		reconciliation: recon,
		dormancy:       dormancyReports,
		checks:         checks,
		store:          store,
		log:            log,
		now:            time.Now,
	}
}

// Generate recomputes and persists statistics for a month given as "YYYY-MM".
func (g *Generator) Generate(ctx context.Context, month string) (MonthlyStatistics, error) {
	from, to, err := monthRange(month)
	if err != nil {
		return MonthlyStatistics{}, err
	}

	stats := MonthlyStatistics{Month: month, GeneratedAt: g.now().UTC()}

	totals, err := g.redemptions.TotalsInRange(ctx, from, to)
	if err != nil {
		return MonthlyStatistics{}, fmt.Errorf("aggregate redemptions: %w", err)
	}
	stats.RedemptionsCompleted = totals.CompletedCount
	stats.RedemptionsValue = totals.CompletedValue
	stats.RedemptionsFailed = totals.FailedCount

	recs, err := g.reconciliation.ListSince(ctx, from)
	if err != nil {
		return MonthlyStatistics{}, fmt.Errorf("list reconciliations: %w", err)
	}
	stats.WorstCoverageRatio = 1.0
	seen := false
	for _, rec := range recs {
		if !rec.Date.Before(to) {
			continue
		}
		switch rec.Status {
		case reconciliation.StatusCompliant:
			stats.CompliantDays++
		case reconciliation.StatusDeficient:
			stats.DeficientDays++
		}
		if !seen || rec.CoverageRatio < stats.WorstCoverageRatio {
			stats.WorstCoverageRatio = rec.CoverageRatio
			seen = true
		}
	}

	dormRep, err := g.dormancy.GetByMonth(ctx, month)
	if err != nil && !errors.Is(err, dormancy.ErrReportNotFound) {
		return MonthlyStatistics{}, fmt.Errorf("load dormancy report: %w", err)
	}
	if err == nil {
		stats.DormantWallets = dormRep.DormantCount
		stats.DormantValue = dormRep.DormantValue
		stats.ReleasedCount = dormRep.ReleasedCount
		stats.ReleasedValue = dormRep.ReleasedValue
	}

	total, failed, err := g.checks.CountsInRange(ctx, from, to)
	if err != nil {
		return MonthlyStatistics{}, fmt.Errorf("count health checks: %w", err)
	}
	stats.TotalChecks = total
	stats.FailedChecks = failed
	stats.EstimatedDowntimeMinutes = EstimateDowntimeMinutes(total, failed)
	stats.AvailabilityPercent = AvailabilityPercent(total, failed)

	if err := g.store.UpsertByMonth(ctx, stats); err != nil {
		return MonthlyStatistics{}, fmt.Errorf("persist statistics: %w", err)
	}

	g.log.Info("monthly statistics generated",
		"month", month,
		"redemptions_completed", stats.RedemptionsCompleted,
		"deficient_days", stats.DeficientDays,
		"availability_percent", stats.AvailabilityPercent)
	return stats, nil
}

// Get returns previously generated statistics for a month.
func (g *Generator) Get(ctx context.Context, month string) (MonthlyStatistics, error) {
	if _, _, err := monthRange(month); err != nil {
		return MonthlyStatistics{}, err
	}
	return g.store.GetByMonth(ctx, month)
}

// ErrInvalidMonth indicates the month was not given as YYYY-MM.
var ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")

func monthRange(month string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return from, from.AddDate(0, 1, 0), nil
}
