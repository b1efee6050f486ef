// Package snapshot provides the TTL cache that holds finished governance
// analyses keyed by scope fingerprint. A stale entry is simply recomputed;
// there is no background eviction.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Clock supplies the current time; injectable for deterministic tests.
type Clock func() time.Time

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// Cache is a concurrency-safe TTL cache. Entries older than the TTL are
// treated as absent and overwritten on the next Set.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
	clock   Clock
}

// New creates a cache with the given TTL. A nil clock defaults to
// time.Now; a non-positive TTL disables caching entirely.
func New[T any](ttl time.Duration, clock Clock) *Cache[T] {
	if clock == nil {
		clock = time.Now
	}
	return &Cache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached value for key if it is present and fresh
// against the constructor TTL.
func (c *Cache[T]) Get(key string) (T, bool) {
	return c.GetWithin(key, c.ttl)
}

// GetWithin judges freshness against a caller-supplied TTL, so different
// callers can demand different staleness bounds on the same entry.
func (c *Cache[T]) GetWithin(key string, ttl time.Duration) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if ttl <= 0 {
		return zero, false
	}
	e, ok := c.entries[key]
	if !ok || c.clock().Sub(e.storedAt) >= ttl {
		return zero, false
	}
	return e.value, true
}

// Set stores a value, overwriting any previous entry for the key.
func (c *Cache[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, storedAt: c.clock()}
}

// Len reports the number of entries held, fresh or stale.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fingerprint derives a stable cache key from any JSON-encodable scope.
// Equal scopes always produce the same key; map keys are sorted by the
// encoder so insertion order does not leak into the hash.
func Fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
