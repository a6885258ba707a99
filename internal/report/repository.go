package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no statistics exist for the requested month.
var ErrNotFound = errors.New("monthly statistics not found")

// Repository persists monthly statistics.
type Repository interface {
	UpsertByMonth(ctx context.Context, stats MonthlyStatistics) error
	GetByMonth(ctx context.Context, month string) (MonthlyStatistics, error)
}

// CheckLog exposes health-check counts for the availability figures. The
// checks themselves are written by the uptime monitor, outside this module.
type CheckLog interface {
	CountsInRange(ctx context.Context, from, to time.Time) (total, failed int64, err error)
}

// PostgresRepository stores statistics in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertByMonth inserts or replaces the month's statistics.
func (r *PostgresRepository) UpsertByMonth(ctx context.Context, s MonthlyStatistics) error {
	_, err := r.db.Exec(ctx, `INSERT INTO monthly_statistics
        (report_month, redemptions_completed, redemptions_value, redemptions_failed,
         compliant_days, deficient_days, worst_coverage_ratio,
         dormant_wallets, dormant_value, released_count, released_value,
         total_checks, failed_checks, downtime_minutes, availability_percent, generated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (report_month) DO UPDATE SET
            redemptions_completed = EXCLUDED.redemptions_completed,
            redemptions_value = EXCLUDED.redemptions_value,
            redemptions_failed = EXCLUDED.redemptions_failed,
            compliant_days = EXCLUDED.compliant_days,
            deficient_days = EXCLUDED.deficient_days,
            worst_coverage_ratio = EXCLUDED.worst_coverage_ratio,
            dormant_wallets = EXCLUDED.dormant_wallets,
            dormant_value = EXCLUDED.dormant_value,
            released_count = EXCLUDED.released_count,
            released_value = EXCLUDED.released_value,
            total_checks = EXCLUDED.total_checks,
            failed_checks = EXCLUDED.failed_checks,
            downtime_minutes = EXCLUDED.downtime_minutes,
            availability_percent = EXCLUDED.availability_percent,
            generated_at = EXCLUDED.generated_at`,
		s.Month, s.RedemptionsCompleted, s.RedemptionsValue, s.RedemptionsFailed,
		s.CompliantDays, s.DeficientDays, s.WorstCoverageRatio,
		s.DormantWallets, s.DormantValue, s.ReleasedCount, s.ReleasedValue,
		s.TotalChecks, s.FailedChecks, s.EstimatedDowntimeMinutes, s.AvailabilityPercent, s.GeneratedAt.UTC())
	return err
}

// GetByMonth fetches statistics for a month.
func (r *PostgresRepository) GetByMonth(ctx context.Context, month string) (MonthlyStatistics, error) {
	row := r.db.QueryRow(ctx, `SELECT report_month, redemptions_completed, redemptions_value, redemptions_failed,
        compliant_days, deficient_days, worst_coverage_ratio,
        dormant_wallets, dormant_value, released_count, released_value,
        total_checks, failed_checks, downtime_minutes, availability_percent, generated_at
        FROM monthly_statistics WHERE report_month = $1`, month)
	var s MonthlyStatistics
	var generatedAt time.Time
	if err := row.Scan(&s.Month, &s.RedemptionsCompleted, &s.RedemptionsValue, &s.RedemptionsFailed,
		&s.CompliantDays, &s.DeficientDays, &s.WorstCoverageRatio,
		&s.DormantWallets, &s.DormantValue, &s.ReleasedCount, &s.ReleasedValue,
		&s.TotalChecks, &s.FailedChecks, &s.EstimatedDowntimeMinutes, &s.AvailabilityPercent, &generatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MonthlyStatistics{}, ErrNotFound
		}
		return MonthlyStatistics{}, err
	}
	s.GeneratedAt = generatedAt.UTC()
	return s, nil
}

// PostgresCheckLog reads health-check counts from PostgreSQL.
type PostgresCheckLog struct {
	db *pgxpool.Pool
}

// NewPostgresCheckLog builds a check log backed by PostgreSQL.
func NewPostgresCheckLog(db *pgxpool.Pool) *PostgresCheckLog {
	return &PostgresCheckLog{db: db}
}

// CountsInRange counts checks recorded within [from, to).
func (l *PostgresCheckLog) CountsInRange(ctx context.Context, from, to time.Time) (int64, int64, error) {
	var total, failed int64
	err := l.db.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT healthy)
        FROM uptime_checks WHERE checked_at >= $1 AND checked_at < $2`, from.UTC(), to.UTC()).
		Scan(&total, &failed)
	return total, failed, err
}

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]MonthlyStatistics
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]MonthlyStatistics)}
}

func (r *memoryRepository) UpsertByMonth(_ context.Context, s MonthlyStatistics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[s.Month] = s
	return nil
}

func (r *memoryRepository) GetByMonth(_ context.Context, month string) (MonthlyStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.storage[month]
	if !ok {
		return MonthlyStatistics{}, ErrNotFound
	}
	return s, nil
}

// StaticCheckLog returns fixed check counts; used in tests.
type StaticCheckLog struct {
	Total  int64
	Failed int64
}

// CountsInRange returns the configured counts.
func (l StaticCheckLog) CountsInRange(context.Context, time.Time, time.Time) (int64, int64, error) {
	return l.Total, l.Failed, nil
}
