package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresLedgerSchema = `
CREATE TABLE IF NOT EXISTS courier_dispatched_items (
	item_id       TEXT PRIMARY KEY,
	dispatched_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresLedgerStore keeps the ledger in a Postgres table shared by every replica.
// The pool is owned by the caller.
type PostgresLedgerStore struct {
	pool *pgxpool.Pool
}

// NewPostgresLedgerStore creates the ledger table if needed.
func NewPostgresLedgerStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresLedgerStore, error) {
	if _, err := pool.Exec(ctx, postgresLedgerSchema); err != nil {
		return nil, fmt.Errorf("creating ledger table: %w", err)
	}
	return &PostgresLedgerStore{pool: pool}, nil
}

func (s *PostgresLedgerStore) Load(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT item_id FROM courier_dispatched_items ORDER BY dispatched_at")
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresLedgerStore) Append(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO courier_dispatched_items (item_id) VALUES ($1) ON CONFLICT (item_id) DO NOTHING", id)
	if err != nil {
		return fmt.Errorf("inserting ledger row: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is closed by its owner.
func (s *PostgresLedgerStore) Close() error {
	return nil
}
