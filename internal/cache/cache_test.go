// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*Cache[string, string], *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New[string, string](ttl, 0)
	c.now = clock.Now
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("key1", "value1")
	value, exists := c.Get("key1")
	if !exists || value != "value1" {
		t.Errorf("Get(key1) = %q, %v", value, exists)
	}

	if _, exists = c.Get("key2"); exists {
		t.Error("Expected key2 to not exist")
	}

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.TotalKeys != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if c.HitRate() != 50 {
		t.Errorf("HitRate() = %v, want 50", c.HitRate())
	}
}

func TestCacheExpiration(t *testing.T) {
	c, clock := newTestCache(100 * time.Millisecond)

	c.Set("key1", "value1")
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("Expected key1 to exist immediately after set")
	}

	clock.Advance(150 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be expired")
	}
	if c.GetStats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.GetStats().Evictions)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("Expected a to be deleted")
	}

	c.Clear()
	stats := c.GetStats()
	if stats.TotalKeys != 0 || stats.Evictions != 3 {
		t.Errorf("unexpected stats after clear %+v", stats)
	}
}

func TestCacheCleanup(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	c.Set("short", "x")
	c.SetWithTTL("long", "y", time.Hour)
	clock.Advance(2 * time.Minute)

	c.cleanup()

	if c.GetStats().TotalKeys != 1 {
		t.Errorf("TotalKeys = %d, want 1", c.GetStats().TotalKeys)
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("long-lived entry should survive cleanup")
	}
}

func TestCacheGetOrLoad(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	ctx := context.Background()

	calls := 0
	load := func(_ context.Context, key string) (string, error) {
		calls++
		return "loaded-" + key, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(ctx, "alice", load)
		if err != nil || v != "loaded-alice" {
			t.Fatalf("GetOrLoad() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	wantErr := errors.New("store down")
	_, err := c.GetOrLoad(ctx, "bob", func(context.Context, string) (string, error) { return "", wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrLoad() error = %v", err)
	}
	if _, ok := c.Get("bob"); ok {
		t.Error("errors must not be cached")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute, time.Millisecond)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set(j, n)
				c.Get(j)
				if j%10 == 0 {
					c.Delete(j)
				}
			}
		}(i)
	}
	wg.Wait()

	c.Close()
	c.Close()
}
