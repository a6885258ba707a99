package dormancy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrReportNotFound indicates no report exists for the requested month.
var ErrReportNotFound = errors.New("dormancy report not found")

// NotificationRepository logs dormancy warnings.
type NotificationRepository interface {
	Record(ctx context.Context, n Notification) error
}

// ReportRepository persists monthly dormancy reports.
type ReportRepository interface {
	UpsertByMonth(ctx context.Context, r Report) error
	GetByMonth(ctx context.Context, month string) (Report, error)
}

// PostgresNotificationRepository stores notifications in PostgreSQL.
type PostgresNotificationRepository struct {
	db *pgxpool.Pool
}

// NewPostgresNotificationRepository builds a notification log backed by PostgreSQL.
func NewPostgresNotificationRepository(db *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// Record appends a notification entry.
func (r *PostgresNotificationRepository) Record(ctx context.Context, n Notification) error {
	_, err := r.db.Exec(ctx, `INSERT INTO dormancy_notifications (id, wallet_id, sent_at, threshold_days)
        VALUES ($1, $2, $3, $4)`, uuid.New(), n.WalletID, n.SentAt.UTC(), n.ThresholdDaysAtSend)
	return err
}

// PostgresReportRepository stores reports in PostgreSQL.
type PostgresReportRepository struct {
	db *pgxpool.Pool
}

// NewPostgresReportRepository builds a report store backed by PostgreSQL.
func NewPostgresReportRepository(db *pgxpool.Pool) *PostgresReportRepository {
	return &PostgresReportRepository{db: db}
}

// UpsertByMonth inserts or replaces the month's report.
func (r *PostgresReportRepository) UpsertByMonth(ctx context.Context, rep Report) error {
	_, err := r.db.Exec(ctx, `INSERT INTO dormancy_reports
        (report_month, dormant_count, dormant_value, released_count, released_value, escheated_count, escheated_value, generated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (report_month) DO UPDATE SET
            dormant_count = EXCLUDED.dormant_count,
            dormant_value = EXCLUDED.dormant_value,
            released_count = EXCLUDED.released_count,
            released_value = EXCLUDED.released_value,
            escheated_count = EXCLUDED.escheated_count,
            escheated_value = EXCLUDED.escheated_value,
            generated_at = EXCLUDED.generated_at`,
		rep.Month, rep.DormantCount, rep.DormantValue, rep.ReleasedCount, rep.ReleasedValue,
		rep.EscheatedCount, rep.EscheatedValue, rep.GeneratedAt.UTC())
	return err
}

// GetByMonth fetches the report for a month.
func (r *PostgresReportRepository) GetByMonth(ctx context.Context, month string) (Report, error) {
	row := r.db.QueryRow(ctx, `SELECT report_month, dormant_count, dormant_value, released_count,
        released_value, escheated_count, escheated_value, generated_at
        FROM dormancy_reports WHERE report_month = $1`, month)
	var rep Report
	var generatedAt time.Time
	if err := row.Scan(&rep.Month, &rep.DormantCount, &rep.DormantValue, &rep.ReleasedCount,
		&rep.ReleasedValue, &rep.EscheatedCount, &rep.EscheatedValue, &generatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, err
	}
	rep.GeneratedAt = generatedAt.UTC()
	return rep, nil
}
