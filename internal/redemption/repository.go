package redemption

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no transaction exists for the idempotency key.
	ErrNotFound = errors.New("redemption transaction not found")
	// ErrDuplicateKey indicates the idempotency key was already claimed.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// MonthlyTotals aggregates completed redemptions for reporting.
type MonthlyTotals struct {
	CompletedCount int64
	CompletedValue int64
	FailedCount    int64
}

// Repository persists redemption transactions.
type Repository interface {
	// Create claims the idempotency key by inserting a pending row.
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// Finalize moves a pending transaction to its terminal state.
	Finalize(ctx context.Context, tx Transaction) error
	ListRecent(ctx context.Context, limit int) ([]Transaction, error)
	TotalsInRange(ctx context.Context, from, to time.Time) (MonthlyTotals, error)
}

// PostgresRepository stores redemption transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, subject_id, voucher_id, source_wallet_id, destination_wallet_id, destination,
        method, amount, verification_token_id, status, failure_reason, rail_reference, created_at, completed_at`

// Create inserts a pending transaction; a conflicting key maps to ErrDuplicateKey.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	tag, err := r.db.Exec(ctx, `INSERT INTO redemption_transactions (`+txColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.SubjectID, nullable(tx.VoucherID), nullable(tx.SourceWalletID), nullable(tx.DestinationWalletID),
		nullable(tx.Destination), string(tx.Method), tx.Amount, tx.VerificationTokenID, string(tx.Status),
		nullable(tx.FailureReason), nullable(tx.RailReference), tx.CreatedAt.UTC(), tx.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateKey
	}
	return nil
}

// Get fetches a transaction by idempotency key.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM redemption_transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	return tx, nil
}

// Finalize records the terminal outcome. Terminal rows are never rewritten.
func (r *PostgresRepository) Finalize(ctx context.Context, tx Transaction) error {
	_, err := r.db.Exec(ctx, `UPDATE redemption_transactions
        SET status = $1, failure_reason = $2, rail_reference = $3, completed_at = $4
        WHERE id = $5 AND status = 'pending'`,
		string(tx.Status), nullable(tx.FailureReason), nullable(tx.RailReference), tx.CompletedAt, tx.ID)
	return err
}

// ListRecent returns the latest transactions for the admin dashboard.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM redemption_transactions
        ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// TotalsInRange aggregates terminal transactions created within [from, to).
func (r *PostgresRepository) TotalsInRange(ctx context.Context, from, to time.Time) (MonthlyTotals, error) {
	var totals MonthlyTotals
	err := r.db.QueryRow(ctx, `SELECT
        COUNT(*) FILTER (WHERE status = 'completed'),
        COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
        COUNT(*) FILTER (WHERE status = 'failed')
        FROM redemption_transactions
        WHERE created_at >= $1 AND created_at < $2`, from.UTC(), to.UTC()).
		Scan(&totals.CompletedCount, &totals.CompletedValue, &totals.FailedCount)
	return totals, err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var voucherID, sourceID, destWalletID, destination, reason, railRef *string
	var method, status string
	var createdAt time.Time
	if err := row.Scan(&tx.ID, &tx.SubjectID, &voucherID, &sourceID, &destWalletID, &destination,
		&method, &tx.Amount, &tx.VerificationTokenID, &status, &reason, &railRef,
		&createdAt, &tx.CompletedAt); err != nil {
		return Transaction{}, err
	}
	tx.VoucherID = deref(voucherID)
	tx.SourceWalletID = deref(sourceID)
	tx.DestinationWalletID = deref(destWalletID)
	tx.Destination = deref(destination)
	tx.FailureReason = deref(reason)
	tx.RailReference = deref(railRef)
	tx.Method = Method(method)
	tx.Status = Status(status)
	tx.CreatedAt = createdAt.UTC()
	return tx, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
