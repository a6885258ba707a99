package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoRecords indicates no reconciliation has ever been persisted.
var ErrNoRecords = errors.New("no reconciliation records")

// Repository persists reconciliation records.
type Repository interface {
	// UpsertByDate stores the record keyed by its date; re-running a day
	// overwrites rather than accumulates.
	UpsertByDate(ctx context.Context, rec Record) error
	Latest(ctx context.Context) (Record, error)
	ListSince(ctx context.Context, from time.Time) ([]Record, error)
}

// PostgresRepository stores reconciliation records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recColumns = `id, reconciliation_date, trust_balance, liabilities, coverage_ratio,
        deficiency_amount, status, reconciled_by, stale_reads, created_at`

// UpsertByDate inserts or replaces the day's record.
func (r *PostgresRepository) UpsertByDate(ctx context.Context, rec Record) error {
	recID, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO trust_account_reconciliation (`+recColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (reconciliation_date) DO UPDATE SET
            trust_balance = EXCLUDED.trust_balance,
            liabilities = EXCLUDED.liabilities,
            coverage_ratio = EXCLUDED.coverage_ratio,
            deficiency_amount = EXCLUDED.deficiency_amount,
            status = EXCLUDED.status,
            reconciled_by = EXCLUDED.reconciled_by,
            stale_reads = EXCLUDED.stale_reads,
            created_at = EXCLUDED.created_at`,
		recID, rec.Date, rec.TrustBalance, rec.Liabilities, rec.CoverageRatio,
		rec.DeficiencyAmount, string(rec.Status), rec.ReconciledBy, rec.StaleReads, rec.CreatedAt.UTC())
	return err
}

// Latest returns the most recent record.
func (r *PostgresRepository) Latest(ctx context.Context) (Record, error) {
	row := r.db.QueryRow(ctx, `SELECT `+recColumns+` FROM trust_account_reconciliation
        ORDER BY reconciliation_date DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNoRecords
		}
		return Record{}, err
	}
	return rec, nil
}

// ListSince returns records dated at or after from, newest first.
func (r *PostgresRepository) ListSince(ctx context.Context, from time.Time) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recColumns+` FROM trust_account_reconciliation
        WHERE reconciliation_date >= $1 ORDER BY reconciliation_date DESC`, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var id uuid.UUID
	var status string
	var date, createdAt time.Time
	if err := row.Scan(&id, &date, &rec.TrustBalance, &rec.Liabilities, &rec.CoverageRatio,
		&rec.DeficiencyAmount, &status, &rec.ReconciledBy, &rec.StaleReads, &createdAt); err != nil {
		return Record{}, err
	}
	rec.ID = id.String()
	rec.Date = date
	rec.Status = Status(status)
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}
