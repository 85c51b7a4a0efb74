package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLedgerStore keeps the ledger as a Redis set.
type RedisLedgerStore struct {
	client *redis.Client
	key    string
}

// NewRedisLedgerStore connects to url and checks the connection.
func NewRedisLedgerStore(ctx context.Context, url, key string) (*RedisLedgerStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedisLedgerStoreFromClient(client, key), nil
}

// NewRedisLedgerStoreFromClient wraps an existing client. Close closes the client.
func NewRedisLedgerStoreFromClient(client *redis.Client, key string) *RedisLedgerStore {
	return &RedisLedgerStore{client: client, key: key}
}

func (s *RedisLedgerStore) Load(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading ledger set: %w", err)
	}
	return ids, nil
}

func (s *RedisLedgerStore) Append(ctx context.Context, id string) error {
	if err := s.client.SAdd(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("adding to ledger set: %w", err)
	}
	return nil
}

func (s *RedisLedgerStore) Close() error {
	return s.client.Close()
}
