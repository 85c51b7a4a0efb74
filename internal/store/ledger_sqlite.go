package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteLedgerSchema = `
CREATE TABLE IF NOT EXISTS dispatched_items (
	item_id       TEXT PRIMARY KEY,
	dispatched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteLedgerStore keeps the ledger in a SQLite database file.
type SQLiteLedgerStore struct {
	db *sql.DB
}

// NewSQLiteLedgerStore opens the database at path and creates the ledger table.
func NewSQLiteLedgerStore(ctx context.Context, path string) (*SQLiteLedgerStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite ledger: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent commits.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteLedgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger table: %w", err)
	}

	return &SQLiteLedgerStore{db: db}, nil
}

func (s *SQLiteLedgerStore) Load(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT item_id FROM dispatched_items ORDER BY dispatched_at")
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

func (s *SQLiteLedgerStore) Append(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO dispatched_items (item_id) VALUES (?)", id); err != nil {
		return fmt.Errorf("inserting ledger row: %w", err)
	}
	return nil
}

func (s *SQLiteLedgerStore) Close() error {
	return s.db.Close()
}
