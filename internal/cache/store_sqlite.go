package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"langpacks/internal/storage"
)

const (
	sqliteSelect = "SELECT value, expires_at FROM " + storage.TransientsTable + " WHERE name = ?"
	sqliteUpsert = "INSERT INTO " + storage.TransientsTable + ` (name, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`
	sqliteDelete = "DELETE FROM " + storage.TransientsTable + " WHERE name = ? RETURNING expires_at"
)

// SQLiteStore stores transients in a SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore stores transients in db, creating the table if needed.
func NewSQLiteStore(ctx context.Context, db *storage.SQLite) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.EnsureTransients(ctx); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db.DB(), now: time.Now}, nil
}

// Get returns a transient by name.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value    []byte
		deadline int64
	)
	err := s.db.QueryRowContext(ctx, sqliteSelect, key).Scan(&value, &deadline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, key, value, expiresAt(s.now(), ttl)); err != nil {
		return fmt.Errorf("upsert transient: %w", err)
	}
	return nil
}

// Delete removes a transient. Rows already past their deadline count as missing.
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	var deadline int64
	err := s.db.QueryRowContext(ctx, sqliteDelete, key).Scan(&deadline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("delete transient: %w", err)
	}
	return !expired(deadline, s.now()), nil
}

// Close is a no-op; the connection belongs to the storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
