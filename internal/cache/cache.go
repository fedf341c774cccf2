// Package cache stores translation catalogs in an expiring key/value store.
//
// Values are wrapped in an envelope carrying the time they were written and a
// format tag, so staleness is decided by this package rather than by the
// backing store's own TTL. The backing store TTL only acts as a backstop.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// FormatTag marks envelopes written by this version of the cache.
	FormatTag = "langpacks/1"

	// DefaultExpiration is how long a catalog stays fresh.
	DefaultExpiration = 12 * time.Hour

	// DefaultMinLifespan is the window after a write during which MaybeClean refuses to delete.
	DefaultMinLifespan = 15 * time.Second
)

var errInvalidJSON = errors.New("value is not valid JSON")

// envelope is the stored representation of a cache entry.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	WrittenAt int64           `json:"written_at,omitempty"`
	Version   string          `json:"version_tag,omitempty"`
}

// Cache is a namespaced, time-aware view over a Store.
// Backing store failures are logged and reported as absent values or false.
type Cache struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	expiration  time.Duration
	minLifespan time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiration sets the staleness threshold.
func WithExpiration(d time.Duration) Option {
	return func(c *Cache) { c.expiration = max(d, 0) }
}

// WithMinLifespan sets the MaybeClean debounce window.
func WithMinLifespan(d time.Duration) Option {
	return func(c *Cache) { c.minLifespan = max(d, 0) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for backing store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:       store,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
		expiration:  DefaultExpiration,
		minLifespan: DefaultMinLifespan,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Expiration returns the staleness threshold.
func (c *Cache) Expiration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiration
}

// SetExpiration changes the staleness threshold. Negative values are clamped to zero.
func (c *Cache) SetExpiration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiration = max(d, 0)
}

// MinLifespan returns the MaybeClean debounce window.
func (c *Cache) MinLifespan() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minLifespan
}

// Get returns the data stored under key. It reports false when the key was never
// written, when the entry was not written by Set, or when it is older than the
// expiration. Stale entries are left in place.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	env, ok := c.load(ctx, key)
	if !ok || env.WrittenAt == 0 || env.Version != FormatTag {
		return nil, false
	}
	if c.age(env) > int64(c.Expiration()/time.Second) {
		return nil, false
	}
	return env.Data, true
}

// Set stores data under key. The expiration doubles as the backing store TTL.
// []byte and json.RawMessage values must already hold JSON and are stored as-is.
func (c *Cache) Set(ctx context.Context, key string, data any) bool {
	raw, err := encode(data)
	if err != nil {
		c.logger.Error("failed to encode cache value", "key", key, "error", err)
		return false
	}

	payload, err := json.Marshal(envelope{
		Data:      raw,
		WrittenAt: c.now().Unix(),
		Version:   FormatTag,
	})
	if err != nil {
		c.logger.Error("failed to encode cache envelope", "key", key, "error", err)
		return false
	}

	if err := c.store.Set(ctx, Key(key), payload, c.Expiration()); err != nil {
		c.logger.Error("failed to write cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes key and reports whether an entry existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	deleted, err := c.store.Delete(ctx, Key(key))
	if err != nil {
		c.logger.Error("failed to delete cache entry", "key", key, "error", err)
		return false
	}
	return deleted
}

// GetProject treats the value under cacheKey as a mapping and returns the
// nested object stored under projectKey.
func (c *Cache) GetProject(ctx context.Context, cacheKey, projectKey string) (json.RawMessage, bool) {
	data, ok := c.Get(ctx, cacheKey)
	if !ok {
		return nil, false
	}

	var projects map[string]json.RawMessage
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, false
	}

	nested, ok := projects[projectKey]
	if !ok || !gjson.ParseBytes(nested).IsObject() {
		return nil, false
	}
	return nested, true
}

// SetProject stores data under projectKey inside the mapping at cacheKey.
//
// This is a read-modify-write of the whole mapping: two concurrent writers to
// the same cacheKey can lose one of the updates.
func (c *Cache) SetProject(ctx context.Context, cacheKey, projectKey string, data any) bool {
	projects := make(map[string]json.RawMessage)
	if existing, ok := c.Get(ctx, cacheKey); ok {
		if err := json.Unmarshal(existing, &projects); err != nil || projects == nil {
			projects = make(map[string]json.RawMessage)
		}
	}

	raw, err := encode(data)
	if err != nil {
		c.logger.Error("failed to encode cache value", "key", cacheKey, "project", projectKey, "error", err)
		return false
	}
	projects[projectKey] = raw

	return c.Set(ctx, cacheKey, projects)
}

// MaybeClean deletes key unless it was written within the last MinLifespan.
// It returns false without deleting when the entry is missing or too young,
// which keeps bursts of invalidation events from forcing repeated refetches.
func (c *Cache) MaybeClean(ctx context.Context, key string) bool {
	env, ok := c.load(ctx, key)
	if !ok || env.WrittenAt == 0 {
		return false
	}
	if c.age(env) <= int64(c.MinLifespan()/time.Second) {
		c.logger.Debug("cache entry too young to clean", "key", key)
		return false
	}
	return c.Delete(ctx, key)
}

// encode returns the JSON form of data. Byte slices are taken to be JSON
// already, not binary blobs to be base64 encoded.
func encode(data any) (json.RawMessage, error) {
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.Marshal(data)
	}
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	return raw, nil
}

// load reads the raw envelope regardless of its age.
func (c *Cache) load(ctx context.Context, key string) (*envelope, bool) {
	payload, found, err := c.store.Get(ctx, Key(key))
	if err != nil {
		c.logger.Error("failed to read cache entry", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warn("discarding malformed cache entry", "key", key, "error", err)
		return nil, false
	}
	return &env, true
}

// age returns the whole seconds elapsed since the envelope was written.
func (c *Cache) age(env *envelope) int64 {
	return c.now().Unix() - env.WrittenAt
}
