// Package cache provides a small in-process TTL cache used to memoize status
// computations and record snapshots between polls.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

// Cache is a bounded TTL key/value cache. Expiry is wall clock since
// insertion, not sliding: an entry is never trusted past its TTL no matter
// how often it is read. When full, the oldest entry is evicted.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	maxSize int
	now     func() time.Time
}

// New creates a cache bounded to maxSize entries
func New[V any](maxSize int) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// NewWithClock creates a cache with an injected clock, for tests
func NewWithClock[V any](maxSize int, now func() time.Time) *Cache[V] {
	c := New[V](maxSize)
	c.now = now
	return c
}

// Set stores a value with the given TTL, evicting the oldest entry if full
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = entry[V]{
		value:      value,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether key is present and not expired
func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Cleanup purges expired entries and returns how many were removed
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including not-yet-swept expired ones
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest removes the entry with the earliest insertion time.
// Caller must hold the write lock.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, e := range c.entries {
		if first || e.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
