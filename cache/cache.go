// Package cache provides a generic fixed-capacity in-memory cache with
// least-recently-used eviction.
package cache

import (
	"sync"

	"github.com/satmihir/photocache/internal/utils"
)

// Bounded is a fixed-capacity LRU cache safe for concurrent use.
//
// Get and Set both change recency order, so both take the exclusive lock.
// The lock is never held across a callback or any I/O.
type Bounded[K comparable, V any] struct {
	// We use a mutex to protect the index and the list together.
	mutex    sync.Mutex
	capacity int
	// Key to arena slot.
	index map[K]int32
	// LRU tracking list.
	lru lruList[K, V]

	onEvict func(K, V)
}

// Option configures a Bounded cache.
type Option[K comparable, V any] func(*Bounded[K, V])

// WithEvictCallback registers fn to be called with every entry dropped by
// capacity eviction. Remove and Clear do not trigger it. fn runs outside the
// cache lock.
func WithEvictCallback[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Bounded[K, V]) {
		c.onEvict = fn
	}
}

// New creates a cache holding at most capacity entries. It panics if
// capacity is less than 1.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Bounded[K, V] {
	utils.MustBeTrue(capacity >= 1, "cache: capacity must be at least 1")

	c := &Bounded[K, V]{
		capacity: capacity,
		index:    make(map[K]int32, capacity+1),
		lru:      newLRUList[K, V](capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	idx, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.lru.moveToTail(idx)
	return c.lru.entries[idx].value, true
}

// Set inserts or overwrites the value for key and marks it most recently
// used. If the insert pushes the cache over capacity, exactly one entry, the
// least recently used, is evicted.
func (c *Bounded[K, V]) Set(key K, value V) {
	c.mutex.Lock()

	if idx, ok := c.index[key]; ok {
		c.lru.entries[idx].value = value
		c.lru.moveToTail(idx)
		c.mutex.Unlock()
		return
	}

	idx := c.lru.alloc(key, value)
	c.lru.append(idx)
	c.index[key] = idx

	var (
		evicted    bool
		evictedKey K
		evictedVal V
	)
	if len(c.index) > c.capacity {
		victim := c.lru.front()
		evictedKey = c.lru.entries[victim].key
		evictedVal = c.lru.entries[victim].value
		c.deleteUnlocked(victim)
		evicted = true
	}
	c.mutex.Unlock()

	if evicted && c.onEvict != nil {
		c.onEvict(evictedKey, evictedVal)
	}
}

// Remove deletes key if present.
func (c *Bounded[K, V]) Remove(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if idx, ok := c.index[key]; ok {
		c.deleteUnlocked(idx)
	}
}

// Clear drops every entry.
func (c *Bounded[K, V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	clear(c.index)
	c.lru.reset()
}

// Len returns the current number of entries.
func (c *Bounded[K, V]) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.index)
}

// Cap returns the configured capacity.
func (c *Bounded[K, V]) Cap() int {
	return c.capacity
}

// Keys returns the cached keys ordered from most to least recently used.
// It does not change recency.
func (c *Bounded[K, V]) Keys() []K {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	keys := make([]K, 0, len(c.index))
	for idx := c.lru.tail; idx != nilIndex; idx = c.lru.entries[idx].prev {
		keys = append(keys, c.lru.entries[idx].key)
	}
	return keys
}

// deleteUnlocked unlinks the slot and drops its key. Lock must be held by caller.
func (c *Bounded[K, V]) deleteUnlocked(idx int32) {
	delete(c.index, c.lru.entries[idx].key)
	c.lru.unlink(idx)
	c.lru.release(idx)
}
