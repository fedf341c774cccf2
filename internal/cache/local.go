package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// localItem is the on-disk layout of one LocalStore entry.
type localItem struct {
	ExpiresAt int64  `json:"expires_at"`
	Value     []byte `json:"value"`
}

// LocalStore implements Store with one JSON file per key in a directory.
// This is suitable for single-instance deployments.
type LocalStore struct {
	mu  sync.RWMutex
	dir string
	now func() time.Time
}

// NewLocalStore creates a file-based store rooted at dir.
// The directory is created on first write.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{
		dir: dir,
		now: time.Now,
	}
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the entry file for key.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dir == "" {
		return nil, false, nil
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil // No entry yet, not an error
		}
		return nil, false, fmt.Errorf("failed to read cache file: %w", err)
	}

	var item localItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if expired(item.ExpiresAt, s.now()) {
		return nil, false, nil
	}

	return item.Value, true, nil
}

// Set writes the entry file atomically.
func (s *LocalStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(localItem{ExpiresAt: expiresAt(s.now(), ttl), Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Write atomically using temp file + rename
	target := s.path(key)
	tmpFile := target + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, target); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// Delete removes the entry file. Expired files are removed but reported as missing.
func (s *LocalStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return false, nil
	}

	target := s.path(key)
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read cache file: %w", err)
	}

	live := true
	var item localItem
	if json.Unmarshal(data, &item) == nil && expired(item.ExpiresAt, s.now()) {
		live = false
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to remove cache file: %w", err)
	}
	return live, nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}
