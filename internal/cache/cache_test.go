// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func TestNew_Defaults(t *testing.T) {
	c := New[string, int](time.Minute, 0)
	assert.Equal(t, 1000, c.Stats().Capacity)
	assert.Equal(t, 0, c.Len())
}

func TestSetThenGet(t *testing.T) {
	c := New[string, string](time.Minute, 10)
	c.Set("k", "v")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.True(t, c.Has("k"))
	assert.Equal(t, int64(1), c.HitCount("k"))
}

func TestGet_Missing(t *testing.T) {
	c := New[string, string](time.Minute, 10)
	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestGet_ExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](time.Minute, 10, WithClock(clock.Now))
	c.Set("k", "v")

	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry should be live before ttl")

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire after ttl")
	assert.Equal(t, 0, c.Len(), "expired entry is deleted on read")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expired)
}

func TestSet_EvictsOldestInsertedNotLeastRead(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int](0, 3, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(time.Second)
	c.Set("b", 2)
	clock.Advance(time.Second)
	c.Set("c", 3)

	// Reading "a" repeatedly must not protect it from eviction.
	for i := 0; i < 5; i++ {
		_, ok := c.Get("a")
		require.True(t, ok)
	}

	clock.Advance(time.Second)
	c.Set("d", 4)

	assert.False(t, c.Has("a"), "oldest insertion evicted")
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestSet_OverwriteResetsInsertion(t *testing.T) {
	c := New[string, int](0, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	assert.False(t, c.Has("b"), "b is now the oldest insertion")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestClearAndDelete(t *testing.T) {
	c := New[string, int](0, 10)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	assert.False(t, c.Has("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Stats().Size)
}

func TestStats_HitRate(t *testing.T) {
	c := New[string, int](0, 10)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.0001)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](time.Minute, 50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%75)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

// TestProperty_FIFOEviction checks that after inserting n distinct keys into a
// cache of capacity k, exactly the last k insertions survive.
func TestProperty_FIFOEviction(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only the newest insertions survive", prop.ForAll(
		func(capacity int, extra int) bool {
			c := New[int, int](0, capacity)
			total := capacity + extra
			for i := 0; i < total; i++ {
				c.Set(i, i)
				// reads never change eviction order
				c.Get(0)
			}
			if c.Len() != capacity {
				return false
			}
			for i := 0; i < total; i++ {
				if c.Has(i) != (i >= extra) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
