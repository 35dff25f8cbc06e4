package store

import (
	"sync"
	"time"
)

// MemCache is the ephemeral tier of the link registry: a TTL-bound
// in-process mirror of durable records. All methods are nil-safe so a
// registry constructed without a mirror degrades to durable-only operation.
type MemCache struct {
	mu    sync.Mutex
	items map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// NewMemCache returns an empty mirror.
func NewMemCache() *MemCache {
	return &MemCache{items: make(map[string]memEntry)}
}

// Set stores data under key for ttl. Expired siblings are swept
// opportunistically to bound growth.
func (c *MemCache) Set(key string, data []byte, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if now.After(e.expires) {
			delete(c.items, k)
		}
	}
	c.items[key] = memEntry{data: data, expires: now.Add(ttl)}
}

// Get returns the value for key if present and unexpired.
func (c *MemCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.items, key)
		return nil, false
	}
	return e.data, true
}

// Delete removes key from the mirror.
func (c *MemCache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
