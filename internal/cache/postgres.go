package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mediaresolver/internal/resolver"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool behind the shared cache.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is the networked result cache for multi-process deployments:
// a flat KV table (key, value, expires_at). Store failures degrade to
// miss/no-op so resolution is never blocked by the cache tier.
type Postgres struct {
	pool     pgxPool
	table    string
	settings resolver.Settings
	clock    resolver.Clock
	logger   *zap.Logger
}

// NewPostgres connects a Postgres-backed cache using the provided config.
func NewPostgres(
	ctx context.Context,
	cfg PostgresConfig,
	settings resolver.Settings,
	clock resolver.Clock,
	logger *zap.Logger,
) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse cache dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect cache store: %w", err)
	}
	return NewPostgresWithPool(pool, cfg.Table, settings, clock, logger)
}

// NewPostgresWithPool constructs a cache from an existing pool (primarily
// for testing).
func NewPostgresWithPool(
	pool pgxPool,
	table string,
	settings resolver.Settings,
	clock resolver.Clock,
	logger *zap.Logger,
) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "media_cache"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{
		pool:     pool,
		table:    table,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Get returns the live entry for id or resolver.ErrCacheMiss. Store
// errors are logged and reported as a miss.
func (p *Postgres) Get(ctx context.Context, id resolver.ContentIdentity) (*resolver.MediaDescriptor, error) {
	if !id.Valid() {
		return nil, resolver.ErrCacheMiss
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1 AND expires_at > $2", p.table)
	var payload []byte
	err := p.pool.QueryRow(ctx, query, id.CacheKey(), p.clock.Now()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resolver.ErrCacheMiss
	}
	if err != nil {
		p.logger.Warn("cache read degraded to miss",
			zap.String("key", id.CacheKey()),
			zap.Error(err),
		)
		return nil, resolver.ErrCacheMiss
	}
	var desc resolver.MediaDescriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		p.logger.Warn("cache entry is not decodable",
			zap.String("key", id.CacheKey()),
			zap.Error(err),
		)
		return nil, resolver.ErrCacheMiss
	}
	return &desc, nil
}

// Set overwrites the entry for id with the platform TTL. Store errors are
// logged and swallowed.
func (p *Postgres) Set(ctx context.Context, id resolver.ContentIdentity, desc resolver.MediaDescriptor) error {
	if !id.Valid() {
		return nil
	}
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	expiresAt := p.clock.Now().Add(ttlFor(p.settings, id.Platform))
	query := fmt.Sprintf(
		"INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at",
		p.table,
	)
	if _, err := p.pool.Exec(ctx, query, id.CacheKey(), payload, expiresAt); err != nil {
		p.logger.Warn("cache write failed",
			zap.String("key", id.CacheKey()),
			zap.Error(err),
		)
	}
	return nil
}

// Clear deletes entries by key prefix; the namespace is flat so this is a
// scan-and-delete, not a single-key operation.
func (p *Postgres) Clear(ctx context.Context, platform resolver.Platform) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE key LIKE $1", p.table)
	tag, err := p.pool.Exec(ctx, query, clearPrefix(platform)+"%")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
