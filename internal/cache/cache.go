// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

// Package cache provides a thread-safe in-memory TTL cache.
//
// The dispatcher uses it to hold actor summaries (username, avatar) that
// are embedded in every notification frame, so a burst of likes on one post
// costs one store read instead of one per notification.
package cache

import (
	"context"
	"sync"
	"time"
)

// entry represents a cached item with expiration
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats tracks cache performance metrics
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Loader fetches the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a thread-safe in-memory cache with TTL support.
//
// Entries past their TTL are treated as absent on read and swept by a
// background goroutine. Call Close to stop the sweeper.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	stats   Stats
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache whose entries expire after ttl. Expired entries are
// swept every sweepInterval; zero disables the sweeper.
//
//	c := cache.New[int64, Actor](5*time.Minute, time.Minute)
//	defer c.Close()
func New[K comparable, V any](ttl, sweepInterval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.cleanupLoop(sweepInterval)
	}
	return c
}

// Get retrieves a value, reporting false if it is absent or expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return e.value, true
	}

	c.mu.Lock()
	c.stats.Misses++
	if ok {
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
	c.mu.Unlock()

	var zero V
	return zero, false
}

// Set stores a value with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Errors are not cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load Loader[K, V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx, key)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes a specific cache entry by key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[K]entry[V])
}

// GetStats returns a snapshot of current cache statistics.
func (c *Cache[K, V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.TotalKeys = int64(len(c.entries))
	return s
}

// HitRate returns the cache hit rate as a percentage
func (c *Cache[K, V]) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// Close stops the background sweeper. The cache remains usable.
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *Cache[K, V]) cleanup() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}
