package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no voucher exists with the given identifier.
	ErrNotFound = errors.New("voucher not found")
	// ErrVersionConflict occurs when an optimistic update lost the race.
	ErrVersionConflict = errors.New("voucher version conflict")
)

// Repository persists vouchers.
type Repository interface {
	Create(ctx context.Context, v Voucher) error
	Get(ctx context.Context, id string) (Voucher, error)
	// Update applies the voucher row guarded by its version and bumps it.
	Update(ctx context.Context, v Voucher) error
}

// PostgresRepository stores vouchers in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a voucher record.
func (r *PostgresRepository) Create(ctx context.Context, v Voucher) error {
	voucherID, err := uuid.Parse(v.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO vouchers (id, owner_id, amount, currency, status, expiry_date, redeemed_at, version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		voucherID, v.OwnerID, v.Amount, v.Currency, string(v.Status), v.ExpiryDate, v.RedeemedAt, v.Version, v.CreatedAt.UTC())
	return err
}

// Get fetches a voucher by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Voucher, error) {
	voucherID, err := uuid.Parse(id)
	if err != nil {
		return Voucher{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, amount, currency, status, expiry_date, redeemed_at, version, created_at
        FROM vouchers WHERE id = $1`, voucherID)
	var v Voucher
	var idVal uuid.UUID
	var status string
	var createdAt time.Time
	if err := row.Scan(&idVal, &v.OwnerID, &v.Amount, &v.Currency, &status, &v.ExpiryDate, &v.RedeemedAt, &v.Version, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	v.ID = idVal.String()
	v.Status = Status(status)
	v.CreatedAt = createdAt.UTC()
	return v, nil
}

// Update writes the voucher guarded by its version.
func (r *PostgresRepository) Update(ctx context.Context, v Voucher) error {
	tag, err := r.db.Exec(ctx, `UPDATE vouchers SET status = $1, redeemed_at = $2, version = version + 1
        WHERE id = $3 AND version = $4`,
		string(v.Status), v.RedeemedAt, v.ID, v.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
