package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hazyhaar/timecap/capture"
)

// Record is a short-link registry entry. The durable copy never expires and
// is never deleted; the ephemeral mirror expires independently and is
// refreshed from durable storage on miss.
type Record struct {
	ShortID       string                `json:"short_id"`
	OriginalURL   string                `json:"original_url"`
	Timestamp     float64               `json:"timestamp"`
	Width         int                   `json:"width"`
	Height        int                   `json:"height"`
	ScreenshotURL string                `json:"screenshot_url"`
	Metadata      capture.VideoMetadata `json:"metadata"`
	CreatedAt     time.Time             `json:"created_at"`
	Clicks        int64                 `json:"clicks"`
}

// LinkStore persists short-link records as one JSON file per short id, with
// an optional TTL mirror in front. Mirror failures never fail an operation;
// a durable-tier failure does.
type LinkStore struct {
	dir    string
	mirror *MemCache
	ttl    time.Duration

	// mu serializes click increments so concurrent resolves cannot lose
	// updates.
	mu sync.Mutex
}

// NewLinkStore creates the links directory if needed. mirror may be nil.
func NewLinkStore(dir string, mirror *MemCache, ttl time.Duration) (*LinkStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &LinkStore{dir: dir, mirror: mirror, ttl: ttl}, nil
}

// Save writes the record durably and refreshes the mirror.
func (s *LinkStore) Save(rec *Record) error {
	if !validKey.MatchString(rec.ShortID) {
		return fmt.Errorf("store: invalid short id %q", rec.ShortID)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", rec.ShortID, err)
	}
	if err := os.WriteFile(s.path(rec.ShortID), data, 0o644); err != nil {
		return fmt.Errorf("store: save %s: %w", rec.ShortID, err)
	}
	s.mirror.Set(mirrorKey(rec.ShortID), data, s.ttl)
	return nil
}

// Load returns the record for id, consulting the mirror first and falling
// back to the durable file, repopulating the mirror on a fallback hit.
func (s *LinkStore) Load(id string) (*Record, error) {
	if !validKey.MatchString(id) {
		return nil, ErrNotFound
	}
	if data, ok := s.mirror.Get(mirrorKey(id)); ok {
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
		// A corrupt mirror entry degrades to the durable tier.
		s.mirror.Delete(mirrorKey(id))
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	s.mirror.Set(mirrorKey(id), data, s.ttl)
	return &rec, nil
}

// Exists reports whether a durable record exists for id.
func (s *LinkStore) Exists(id string) bool {
	if !validKey.MatchString(id) {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// IncrementClicks atomically bumps the click counter for id against the
// durable copy and persists the result. The read-modify-write is serialized
// through a single store-level lock.
func (s *LinkStore) IncrementClicks(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Read the durable file directly: the mirror may lag behind a
	// concurrent increment.
	if !validKey.MatchString(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	rec.Clicks++
	if err := s.Save(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *LinkStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func mirrorKey(id string) string {
	return "link:" + id
}
