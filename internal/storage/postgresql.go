package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"langpacks/config"
)

// defaultPostgresConns sizes the pool when max_conns is unset.
const defaultPostgresConns = 10

// PostgreSQL is a pooled PostgreSQL connection.
type PostgreSQL struct {
	pool *pgxpool.Pool
}

// NewPostgreSQL connects to cfg.URL and verifies the connection.
func NewPostgreSQL(ctx context.Context, cfg config.PostgreSQLConfig) (*PostgreSQL, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("PostgreSQL URL is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL URL: %w", err)
	}
	poolCfg.MaxConns = defaultPostgresConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return &PostgreSQL{pool: pool}, nil
}

// Type returns "postgresql".
func (s *PostgreSQL) Type() string { return TypePostgreSQL }

// Pool returns the connection pool.
func (s *PostgreSQL) Pool() *pgxpool.Pool { return s.pool }

// EnsureTransients creates the transients table.
func (s *PostgreSQL) EnsureTransients(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+TransientsTable+` (
			name TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transients table: %w", err)
	}
	return nil
}

// PruneTransients deletes rows past their deadline. A zero deadline never expires.
func (s *PostgreSQL) PruneTransients(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM "+TransientsTable+" WHERE expires_at > 0 AND expires_at <= $1", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune transients: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the pool.
func (s *PostgreSQL) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
