package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediaresolver/internal/resolver"
)

// PostgresConfig controls the connection pool behind the credential store.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore persists credentials in Postgres so multiple resolver
// processes share one pool.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a Postgres-backed credential store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("credentials.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse credentials dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect credential store: %w", err)
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

const credentialColumns = "id, platform, tier, secret, status, cooldown_until, last_error, last_used, created_at"

// List returns credentials for a platform; empty platform lists all.
func (s *PostgresStore) List(ctx context.Context, platform resolver.Platform) ([]resolver.Credential, error) {
	query := "SELECT " + credentialColumns + " FROM credentials"
	args := []any{}
	if platform != resolver.PlatformUnknown {
		query += " WHERE platform = $1"
		args = append(args, string(platform))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []resolver.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// Get fetches one credential by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (resolver.Credential, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+credentialColumns+" FROM credentials WHERE id = $1", id)
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return resolver.Credential{}, ErrNotFound
	}
	if err != nil {
		return resolver.Credential{}, err
	}
	return cred, nil
}

// Save upserts a credential record.
func (s *PostgresStore) Save(ctx context.Context, cred resolver.Credential) error {
	if cred.ID == "" {
		return errors.New("credential id is required")
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO credentials ("+credentialColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"ON CONFLICT (id) DO UPDATE SET "+
			"status = EXCLUDED.status, cooldown_until = EXCLUDED.cooldown_until, "+
			"last_error = EXCLUDED.last_error, last_used = EXCLUDED.last_used",
		cred.ID,
		string(cred.Platform),
		string(cred.Tier),
		cred.Secret,
		string(cred.Status),
		cred.CooldownUntil,
		cred.LastError,
		cred.LastUsed,
		cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func scanCredential(row pgx.Row) (resolver.Credential, error) {
	var (
		cred          resolver.Credential
		platform      string
		tier          string
		status        string
		cooldownUntil *time.Time
	)
	err := row.Scan(
		&cred.ID,
		&platform,
		&tier,
		&cred.Secret,
		&status,
		&cooldownUntil,
		&cred.LastError,
		&cred.LastUsed,
		&cred.CreatedAt,
	)
	if err != nil {
		return resolver.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	cred.Platform = resolver.Platform(platform)
	cred.Tier = resolver.CredentialTier(tier)
	cred.Status = resolver.CredentialStatus(status)
	cred.CooldownUntil = cooldownUntil
	return cred, nil
}
