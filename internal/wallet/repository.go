package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no wallet exists with the given identifier.
	ErrNotFound = errors.New("wallet not found")
	// ErrVersionConflict occurs when an optimistic update lost the race;
	// callers refetch and retry rather than overwrite.
	ErrVersionConflict = errors.New("wallet version conflict")
)

// Repository persists wallets.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	// Update applies the wallet row guarded by its version and bumps it.
	Update(ctx context.Context, w Wallet) error
	ListByState(ctx context.Context, state DormancyState) ([]Wallet, error)
	// ListInactiveSince returns wallets in any of the states whose last
	// transaction is at or before the cutoff.
	ListInactiveSince(ctx context.Context, states []DormancyState, cutoff time.Time) ([]Wallet, error)
	// ListHeldSince returns held wallets whose hold started at or before the cutoff.
	ListHeldSince(ctx context.Context, cutoff time.Time) ([]Wallet, error)
	// SumLiabilities totals balances across the liability states.
	SumLiabilities(ctx context.Context) (int64, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, owner_id, balance, currency, last_transaction_at, dormancy_state,
        warning_sent_at, dormant_since, held_since, primary_bank_account, redemptions_halted, version, created_at`

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		walletID, ownerID, w.Balance, w.Currency, w.LastTransactionAt.UTC(), string(w.DormancyState),
		w.WarningSentAt, w.DormantSince, w.HeldSince, w.PrimaryBankAccount, w.RedemptionsHalted, w.Version, w.CreatedAt.UTC())
	return err
}

// Get fetches a wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

// Update writes the wallet guarded by its version.
func (r *PostgresRepository) Update(ctx context.Context, w Wallet) error {
	tag, err := r.db.Exec(ctx, `UPDATE wallets SET
        balance = $1, last_transaction_at = $2, dormancy_state = $3, warning_sent_at = $4,
        dormant_since = $5, held_since = $6, primary_bank_account = $7, redemptions_halted = $8,
        version = version + 1
        WHERE id = $9 AND version = $10`,
		w.Balance, w.LastTransactionAt.UTC(), string(w.DormancyState), w.WarningSentAt,
		w.DormantSince, w.HeldSince, w.PrimaryBankAccount, w.RedemptionsHalted,
		w.ID, w.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListByState returns wallets in one dormancy state.
func (r *PostgresRepository) ListByState(ctx context.Context, state DormancyState) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE dormancy_state = $1`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

// ListInactiveSince returns wallets inactive since the cutoff in the given states.
func (r *PostgresRepository) ListInactiveSince(ctx context.Context, states []DormancyState, cutoff time.Time) ([]Wallet, error) {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE dormancy_state = ANY($1) AND last_transaction_at <= $2
        ORDER BY last_transaction_at`, names, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

// ListHeldSince returns held wallets whose hold began at or before the cutoff.
func (r *PostgresRepository) ListHeldSince(ctx context.Context, cutoff time.Time) ([]Wallet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE dormancy_state = $1 AND held_since IS NOT NULL AND held_since <= $2
        ORDER BY held_since`, string(StateHeld), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWallets(rows)
}

// SumLiabilities totals the balances that count as outstanding e-money.
func (r *PostgresRepository) SumLiabilities(ctx context.Context) (int64, error) {
	states := LiabilityStates()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM wallets
        WHERE dormancy_state = ANY($1)`, names).Scan(&total)
	return total, err
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var id, ownerID uuid.UUID
	var state string
	var lastTx, createdAt time.Time
	if err := row.Scan(&id, &ownerID, &w.Balance, &w.Currency, &lastTx, &state,
		&w.WarningSentAt, &w.DormantSince, &w.HeldSince, &w.PrimaryBankAccount,
		&w.RedemptionsHalted, &w.Version, &createdAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	w.DormancyState = DormancyState(state)
	w.LastTransactionAt = lastTx.UTC()
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func scanWallets(rows pgx.Rows) ([]Wallet, error) {
	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
