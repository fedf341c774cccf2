package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"langpacks/config"
	"langpacks/internal/storage"
)

// Store type names accepted in cache.type.
const (
	TypeMemory = "memory"
	TypeLocal  = "local"
	TypeRedis  = "redis"
	TypeSQL    = "storage"
)

// StoreResult holds the initialized transient store and optional owned storage.
type StoreResult struct {
	Store   Store
	Storage storage.Storage
}

// Close releases resources held by the store and any storage it owns.
func (r *StoreResult) Close() error {
	var errs []error
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if r.Storage != nil {
		if err := r.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}

// NewStore builds the transient store selected by cfg.Cache.Type.
// The "storage" type opens the database described by cfg.Storage and keeps
// transients in a table or collection there.
func NewStore(ctx context.Context, cfg *config.Config) (*StoreResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	switch cfg.Cache.Type {
	case "", TypeMemory:
		slog.Info("using in-memory transient store")
		return &StoreResult{Store: NewMemoryStore()}, nil

	case TypeLocal:
		slog.Info("using local file transient store", "dir", cfg.Cache.Local.Dir)
		return &StoreResult{Store: NewLocalStore(cfg.Cache.Local.Dir)}, nil

	case TypeRedis:
		store, err := NewRedisStore(RedisConfig{
			URL:    cfg.Cache.Redis.URL,
			Prefix: cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return &StoreResult{Store: store}, nil

	case TypeSQL:
		db, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		if n, err := db.PruneTransients(ctx, time.Now()); err != nil {
			slog.Warn("failed to prune expired transients", "error", err)
		} else if n > 0 {
			slog.Info("pruned expired transients", "count", n)
		}
		store, err := NewStoreWithSharedStorage(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("using database transient store", "storage_type", db.Type())
		return &StoreResult{Store: store, Storage: db}, nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s (valid: memory, local, redis, storage)", cfg.Cache.Type)
	}
}

// NewStoreWithSharedStorage creates a transient store on an existing connection.
func NewStoreWithSharedStorage(ctx context.Context, shared storage.Storage) (Store, error) {
	switch db := shared.(type) {
	case *storage.SQLite:
		return NewSQLiteStore(ctx, db)
	case *storage.PostgreSQL:
		return NewPostgreSQLStore(ctx, db)
	case *storage.MongoDB:
		return NewMongoDBStore(ctx, db)
	case nil:
		return nil, fmt.Errorf("shared storage is required")
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", shared.Type())
	}
}
