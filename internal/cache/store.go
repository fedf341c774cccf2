package cache

import (
	"context"
	"time"
)

// Store is the expiring key/value backend the envelope cache is layered on.
// It plays the role of the host platform's transient storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored bytes. Missing and expired items report found=false.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key. A ttl of zero keeps the item until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether an item existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// expiresAt converts a ttl into the absolute unix deadline used by persistent stores.
// Zero means no deadline.
func expiresAt(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).Unix()
}

func expired(deadline int64, now time.Time) bool {
	return deadline > 0 && now.Unix() >= deadline
}
