// Package cache is an in-process key/value cache whose entries expire on
// an absolute deadline after write and on a sliding idle window refreshed
// by every read, whichever comes first.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Option customises a Cache during construction.
type Option func(*config)

type config struct {
	clock Clock
}

// WithClock replaces time.Now, primarily for testing.
func WithClock(clock Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// entry is immutable after Set except for lastAccess.
type entry[V any] struct {
	value      V
	writtenAt  time.Time
	lastAccess atomic.Int64 // unix nanoseconds
}

// Cache is safe for concurrent use. Values are stored and returned as-is,
// so callers must not mutate them after Set.
type Cache[V any] struct {
	absolute time.Duration
	sliding  time.Duration
	clock    Clock

	mu      sync.RWMutex
	entries map[string]*entry[V]
}

// New creates a cache. absolute bounds an entry's lifetime from its write;
// sliding bounds the idle time between reads. A non-positive duration
// disables that bound.
func New[V any](absolute, sliding time.Duration, opts ...Option) *Cache[V] {
	cfg := &config{clock: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Cache[V]{
		absolute: absolute,
		sliding:  sliding,
		clock:    cfg.clock,
		entries:  make(map[string]*entry[V]),
	}
}

// Get returns the value stored under key when it has not expired,
// and extends its sliding window.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.clock()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if c.expired(e, now) {
		c.evict(key, e)
		return zero, false
	}

	e.touch(now)
	return e.value, true
}

// touch moves lastAccess forward to now. A concurrent reader holding an
// older timestamp never moves it back.
func (e *entry[V]) touch(now time.Time) {
	ts := now.UnixNano()
	for {
		last := e.lastAccess.Load()
		if ts <= last || e.lastAccess.CompareAndSwap(last, ts) {
			return
		}
	}
}

// Set stores value under key, replacing any previous entry atomically.
func (c *Cache[V]) Set(key string, value V) {
	now := c.clock()
	e := &entry[V]{value: value, writtenAt: now}
	e.lastAccess.Store(now.UnixNano())

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) expired(e *entry[V], now time.Time) bool {
	if c.absolute > 0 && !now.Before(e.writtenAt.Add(c.absolute)) {
		return true
	}
	if c.sliding > 0 {
		lastAccess := time.Unix(0, e.lastAccess.Load())
		if !now.Before(lastAccess.Add(c.sliding)) {
			return true
		}
	}
	return false
}

// evict removes key only if it still maps to e, so a concurrent Set is kept.
func (c *Cache[V]) evict(key string, e *entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current == e {
		delete(c.entries, key)
	}
}
