package store

import (
	"context"
	"fmt"

	"basegraph.app/courier/core/config"
	"basegraph.app/courier/core/db"
)

// NewLedgerStore opens the ledger backend selected by cfg.Ledger.Driver.
func NewLedgerStore(ctx context.Context, cfg config.Config) (LedgerStore, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerDriverFile, "":
		return NewFileLedgerStore(cfg.Ledger.Path)
	case config.LedgerDriverSQLite:
		return NewSQLiteLedgerStore(ctx, cfg.Ledger.Path)
	case config.LedgerDriverPostgres:
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		s, err := NewPostgresLedgerStore(ctx, database.Pool())
		if err != nil {
			database.Close()
			return nil, err
		}
		return &ownedPostgresStore{PostgresLedgerStore: s, db: database}, nil
	case config.LedgerDriverRedis:
		return NewRedisLedgerStore(ctx, cfg.Ledger.RedisURL, cfg.Ledger.RedisKey)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

// ownedPostgresStore closes the pool it was opened with.
type ownedPostgresStore struct {
	*PostgresLedgerStore
	db *db.DB
}

func (s *ownedPostgresStore) Close() error {
	s.db.Close()
	return nil
}
