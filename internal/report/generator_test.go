package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/dormancy"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/logging"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/reconciliation"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/redemption"
)

func TestEstimateDowntimeMinutes(t *testing.T) {
	// 288 five-minute checks per day; 3 failures read as 15 minutes down.
	if got := EstimateDowntimeMinutes(288, 3); got != 15 {
		t.Fatalf("expected 15 minutes, got %f", got)
	}
	if got := EstimateDowntimeMinutes(0, 0); got != 0 {
		t.Fatalf("expected 0 for no checks, got %f", got)
	}
	if got := EstimateDowntimeMinutes(100, 0); got != 0 {
		t.Fatalf("expected 0 for no failures, got %f", got)
	}
}

func TestAvailabilityPercent(t *testing.T) {
	if got := AvailabilityPercent(0, 0); got != 100 {
		t.Fatalf("expected 100 with no checks, got %f", got)
	}
	if got := AvailabilityPercent(200, 2); got != 99 {
		t.Fatalf("expected 99, got %f", got)
	}
}

func TestGenerateRecomputesMonth(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	month := now.Format("2006-01")
	midMonth := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC)

	redemptions := redemption.NewMemoryRepository()
	completed := redemption.Transaction{
		ID: uuid.NewString(), SubjectID: uuid.NewString(), Method: redemption.MethodWallet,
		Amount: 50000, Status: redemption.StatusCompleted, CreatedAt: midMonth,
	}
	failed := redemption.Transaction{
		ID: uuid.NewString(), SubjectID: uuid.NewString(), Method: redemption.MethodCashOut,
		Amount: 20000, Status: redemption.StatusFailed, CreatedAt: midMonth,
	}
	if err := redemptions.Create(ctx, completed); err != nil {
		t.Fatalf("create tx: %v", err)
	}
	if err := redemptions.Create(ctx, failed); err != nil {
		t.Fatalf("create tx: %v", err)
	}

	recons := reconciliation.NewMemoryRepository()
	for day, status := range map[int]reconciliation.Status{
		10: reconciliation.StatusCompliant,
		11: reconciliation.StatusDeficient,
	} {
		ratio := 1.0
		if status == reconciliation.StatusDeficient {
			ratio = 0.98
		}
		err := recons.UpsertByDate(ctx, reconciliation.Record{
			ID:            uuid.NewString(),
			Date:          time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC),
			TrustBalance:  100,
			Liabilities:   100,
			CoverageRatio: ratio,
			Status:        status,
			CreatedAt:     midMonth,
		})
		if err != nil {
			t.Fatalf("upsert record: %v", err)
		}
	}

	dormancyReports := dormancy.NewMemoryReportRepository()
	err := dormancyReports.UpsertByMonth(ctx, dormancy.Report{
		Month: month, DormantCount: 4, DormantValue: 160000,
		ReleasedCount: 1, ReleasedValue: 75000, GeneratedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert dormancy report: %v", err)
	}

	gen := NewGenerator(redemptions, recons, dormancyReports,
		StaticCheckLog{Total: 288, Failed: 3}, NewMemoryRepository(), logging.Discard())

	stats, err := gen.Generate(ctx, month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if stats.RedemptionsCompleted != 1 || stats.RedemptionsValue != 50000 || stats.RedemptionsFailed != 1 {
		t.Fatalf("unexpected redemption figures: %+v", stats)
	}
	if stats.CompliantDays != 1 || stats.DeficientDays != 1 {
		t.Fatalf("unexpected reconciliation day counts: %+v", stats)
	}
	if stats.WorstCoverageRatio != 0.98 {
		t.Fatalf("expected worst ratio 0.98, got %f", stats.WorstCoverageRatio)
	}
	if stats.DormantWallets != 4 || stats.ReleasedValue != 75000 {
		t.Fatalf("unexpected dormancy figures: %+v", stats)
	}
	if stats.EstimatedDowntimeMinutes != 15 {
		t.Fatalf("expected 15 downtime minutes, got %f", stats.EstimatedDowntimeMinutes)
	}

	stored, err := gen.Get(ctx, month)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.RedemptionsValue != stats.RedemptionsValue {
		t.Fatalf("stored statistics mismatch")
	}
}

func TestGenerateRejectsBadMonth(t *testing.T) {
	gen := NewGenerator(redemption.NewMemoryRepository(), reconciliation.NewMemoryRepository(),
		dormancy.NewMemoryReportRepository(), StaticCheckLog{}, NewMemoryRepository(), logging.Discard())

	if _, err := gen.Generate(context.Background(), "2026-13"); err == nil {
		t.Fatalf("expected invalid month error")
	}
	if _, err := gen.Get(context.Background(), "August"); err == nil {
		t.Fatalf("expected invalid month error")
	}
}
