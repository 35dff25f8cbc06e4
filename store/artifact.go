// Package store owns the two persistent stores of the service: the
// fingerprint-addressed artifact cache and the dual-tier short-link registry.
// Both are constructed once at startup and shared by reference; no other
// component touches their directories directly.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrNotFound is returned when a key or short id has no stored value.
var ErrNotFound = errors.New("store: not found")

// validKey guards against path traversal: keys arrive from URL paths.
var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ArtifactStore is a content-addressed byte store: one file per fingerprint
// under a dedicated directory. It takes no locks; concurrent Put on the same
// key is last-writer-wins, and a Get racing a Put may observe a prior or
// partial file depending on filesystem write atomicity.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the cache directory if needed and returns the
// store.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Put stores data under key, replacing any previous artifact.
func (s *ArtifactStore) Put(key string, data []byte) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("store: invalid key %q", key)
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// Get returns the artifact bytes for key, or ErrNotFound.
func (s *ArtifactStore) Get(key string) ([]byte, error) {
	if !validKey.MatchString(key) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the artifact for key and reports whether one existed.
func (s *ArtifactStore) Delete(key string) bool {
	if !validKey.MatchString(key) {
		return false
	}
	return os.Remove(s.path(key)) == nil
}

// ClearAll removes every artifact file and returns the count removed. It is
// not transactional: a Put racing the enumeration may survive or be missed.
func (s *ArtifactStore) ClearAll() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.jpg"))
	if err != nil {
		return 0, fmt.Errorf("store: clear: %w", err)
	}
	removed := 0
	for _, m := range matches {
		if os.Remove(m) == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *ArtifactStore) path(key string) string {
	return filepath.Join(s.dir, key+".jpg")
}
