package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"langpacks/config"
)

// SQLite is a single-file database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens the database at cfg.Path, creating its directory.
// WAL mode lets catalog reads proceed while another request writes.
func NewSQLite(cfg config.SQLiteConfig) (*SQLite, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultSQLitePath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Type returns "sqlite".
func (s *SQLite) Type() string { return TypeSQLite }

// DB returns the connection.
func (s *SQLite) DB() *sql.DB { return s.db }

// EnsureTransients creates the transients table.
func (s *SQLite) EnsureTransients(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+TransientsTable+` (
			name TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transients table: %w", err)
	}
	return nil
}

// PruneTransients deletes rows past their deadline. A zero deadline never expires.
func (s *SQLite) PruneTransients(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM "+TransientsTable+" WHERE expires_at > 0 AND expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune transients: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
