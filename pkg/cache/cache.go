package cache

import "time"

// Cache represents a generic bounded cache keyed by any comparable type.
type Cache[K comparable, V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and
	// not expired, zero value and false otherwise.
	Get(key K) (V, bool)

	// Set stores a value under the key using the cache's default TTL.
	// Returns true if a new entry was created, false if an existing entry
	// was updated.
	Set(key K, value V) bool

	// SetTTL stores a value with an explicit time-to-live. A ttl of zero
	// means the entry never expires.
	SetTTL(key K, value V, ttl time.Duration) bool

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key K) bool

	// Clear removes all entries from the cache.
	Clear()

	// Size returns the current number of entries, including entries that
	// have expired but not yet been collected.
	Size() int

	// Keys returns all keys in most-recently-used order.
	Keys() []K

	// Stats returns the cache's statistics tracker.
	Stats() *Statistics
}

// EvictCallback is called when an entry is evicted from the cache, either by
// capacity pressure or by TTL expiry. It is never called while the cache
// lock is held.
type EvictCallback[K comparable, V any] func(key K, value V)
