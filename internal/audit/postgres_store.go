package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends audit entries to PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds an audit store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts an entry. There is deliberately no update or delete path.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	entryID, err := uuid.Parse(entry.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO audit_entries (id, entry_type, actor, recorded_at, payload, result)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		entryID, entry.Type, entry.Actor, entry.Timestamp.UTC(), payload, entry.Result)
	return err
}

// ListByType returns entries of one type recorded within [from, to).
func (s *PostgresStore) ListByType(ctx context.Context, entryType string, from, to time.Time) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, entry_type, actor, recorded_at, payload, result
        FROM audit_entries
        WHERE entry_type = $1 AND recorded_at >= $2 AND recorded_at < $3
        ORDER BY recorded_at`, entryType, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		var recordedAt time.Time
		var payload []byte
		if err := rows.Scan(&id, &e.Type, &e.Actor, &recordedAt, &payload, &e.Result); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.Timestamp = recordedAt.UTC()
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
