package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"langpacks/internal/storage"
)

const (
	pgSelect = "SELECT value, expires_at FROM " + storage.TransientsTable + " WHERE name = $1"
	pgUpsert = "INSERT INTO " + storage.TransientsTable + ` (name, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	pgDelete = "DELETE FROM " + storage.TransientsTable + " WHERE name = $1 RETURNING expires_at"
)

// PostgreSQLStore stores transients in a PostgreSQL table.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgreSQLStore stores transients in db, creating the table if needed.
func NewPostgreSQLStore(ctx context.Context, db *storage.PostgreSQL) (*PostgreSQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	if err := db.EnsureTransients(ctx); err != nil {
		return nil, err
	}
	return &PostgreSQLStore{pool: db.Pool(), now: time.Now}, nil
}

// Get returns a transient by name.
func (s *PostgreSQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value    []byte
		deadline int64
	)
	err := s.pool.QueryRow(ctx, pgSelect, key).Scan(&value, &deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query transient: %w", err)
	}
	if expired(deadline, s.now()) {
		return nil, false, nil
	}
	return value, true, nil
}

// Set upserts a transient.
func (s *PostgreSQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.pool.Exec(ctx, pgUpsert, key, value, expiresAt(s.now(), ttl)); err != nil {
		return fmt.Errorf("upsert transient: %w", err)
	}
	return nil
}

// Delete removes a transient and reports whether a live row existed.
func (s *PostgreSQLStore) Delete(ctx context.Context, key string) (bool, error) {
	var deadline int64
	err := s.pool.QueryRow(ctx, pgDelete, key).Scan(&deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("delete transient: %w", err)
	}
	return !expired(deadline, s.now()), nil
}

// Close is a no-op; the pool belongs to the storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
