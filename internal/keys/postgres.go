package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaresolver/internal/resolver"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore validates keys against the shared key table.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a Postgres-backed key store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("keys.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect key store: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Validate resolves a presented secret to its key context.
func (s *PostgresStore) Validate(ctx context.Context, secret string) (*resolver.APIKey, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, status, tier, quota FROM api_keys WHERE secret = $1", secret)
	var (
		key    resolver.APIKey
		status string
	)
	err := row.Scan(&key.ID, &status, &key.Tier, &key.Quota)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resolver.ErrKeyInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("query api key: %w", err)
	}
	key.Status = resolver.APIKeyStatus(status)
	if key.Status != resolver.APIKeyActive {
		return nil, resolver.ErrKeyInvalid
	}
	return &key, nil
}

// RecordUsage increments the counters for a key, success or not.
func (s *PostgresStore) RecordUsage(ctx context.Context, keyID string, success bool) error {
	succeeded := 0
	if success {
		succeeded = 1
	}
	_, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET uses = uses + 1, successes = successes + $2 WHERE id = $1",
		keyID, succeeded)
	if err != nil {
		return fmt.Errorf("record key usage: %w", err)
	}
	return nil
}
