// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides a bounded key/value store with TTL expiry.
// It memoizes classification results and completion responses.
//
// Eviction is FIFO by insertion time: reads increment a hit counter but never
// refresh an entry's position, so the entry inserted first is evicted first
// once the cache is at capacity.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is a single cached value.
type entry[K comparable, V any] struct {
	key   K
	value V

	// insertedAt is when the entry was last set; reads never refresh it
	insertedAt time.Time

	// hits counts successful reads of this entry
	hits int64

	element *list.Element
}

// Stats summarizes cache performance.
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a generic TTL cache with a hard capacity.
type Cache[K comparable, V any] struct {
	ttl      time.Duration
	capacity int

	// entries maps key to entry
	entries map[K]*entry[K, V]

	// order keeps entries in insertion order, oldest at the back
	order *list.List

	// mu guards everything; Get mutates hit counters and expires entries
	mu sync.Mutex

	stats Stats
	now   func() time.Time
}

// Option customizes a Cache.
type Option func(*config)

type config struct {
	now func() time.Time
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// New creates a cache. Non-positive ttl disables expiry; non-positive capacity
// falls back to 1000 entries.
func New[K comparable, V any](ttl time.Duration, capacity int, opts ...Option) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	cfg := &config{now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Cache[K, V]{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[K]*entry[K, V]),
		order:    list.New(),
		now:      cfg.now,
		stats:    Stats{Capacity: capacity},
	}
}

// Get returns the value for key. Expired entries are deleted on access.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	if c.expiredLocked(e) {
		c.removeLocked(e)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}

	e.hits++
	c.stats.Hits++
	return e.value, true
}

// Has reports whether a live entry exists, without counting a hit or miss.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.expiredLocked(e) {
		c.removeLocked(e)
		c.stats.Expired++
		return false
	}
	return true
}

// Set stores value under key. When the cache is full the oldest-inserted
// entry is evicted first. Setting an existing key replaces it and resets its
// insertion time.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	for len(c.entries) >= c.capacity {
		if !c.evictOldestLocked() {
			break
		}
	}

	e := &entry[K, V]{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
	c.stats.Size = len(c.entries)
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.order.Init()
	c.stats.Size = 0
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HitCount returns how many times key has been read since it was set.
func (c *Cache[K, V]) HitCount(key K) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.hits
	}
	return 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.entries)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache[K, V]) expiredLocked(e *entry[K, V]) bool {
	return c.ttl > 0 && c.now().Sub(e.insertedAt) > c.ttl
}

// evictOldestLocked removes the back of the insertion list.
// Must be called with lock held.
func (c *Cache[K, V]) evictOldestLocked() bool {
	oldest := c.order.Back()
	if oldest == nil {
		return false
	}
	c.removeLocked(oldest.Value.(*entry[K, V]))
	c.stats.Evictions++
	return true
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V]) {
	if e.element != nil {
		c.order.Remove(e.element)
	}
	delete(c.entries, e.key)
	c.stats.Size = len(c.entries)
}
