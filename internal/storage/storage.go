// Package storage opens the database that backs the "storage" transient store
// and owns the transients schema in it.
package storage

import (
	"context"
	"fmt"
	"time"

	"langpacks/config"
)

// Backend names accepted in storage.type.
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

const (
	// DefaultSQLitePath is used when no SQLite path is configured.
	DefaultSQLitePath = "data/langpacks.db"

	// DefaultMongoDatabase is used when no MongoDB database is configured.
	DefaultMongoDatabase = "langpacks"

	// TransientsTable names the table or collection holding transients.
	TransientsTable = "langpacks_transients"
)

// Storage is an open database connection holding the transients table.
// Implementations are *SQLite, *PostgreSQL and *MongoDB and are safe for
// concurrent use.
type Storage interface {
	// Type returns the backend name.
	Type() string

	// EnsureTransients creates the transients table, or the collection's TTL
	// index, when missing.
	EnsureTransients(ctx context.Context) error

	// PruneTransients deletes transients whose deadline has passed and returns
	// how many were removed.
	PruneTransients(ctx context.Context, now time.Time) (int64, error)

	// Close releases the connection.
	Close() error
}

// Open connects to the backend selected by cfg.Type (sqlite when empty) and
// prepares the transients schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch cfg.Type {
	case "", TypeSQLite:
		s, err = NewSQLite(cfg.SQLite)
	case TypePostgreSQL:
		s, err = NewPostgreSQL(ctx, cfg.PostgreSQL)
	case TypeMongoDB:
		s, err = NewMongoDB(ctx, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (valid: sqlite, postgresql, mongodb)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := s.EnsureTransients(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
