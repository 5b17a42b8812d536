package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	c := New(4, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Fatalf("Get(k) = %v, %v", v, ok)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", st.HitRate)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if st := c.Stats(); st.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", st.Evictions)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry returned")
	}
	st := c.Stats()
	if st.Expirations != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCacheCleanup(t *testing.T) {
	c := New(8, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if n := c.Cleanup(); n != 2 {
		t.Errorf("Cleanup = %d, want 2", n)
	}
	if st := c.Stats(); st.Size != 1 {
		t.Errorf("size after cleanup = %d", st.Size)
	}
}

func TestCacheSetUpdatesInPlace(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // update, not a new entry

	if st := c.Stats(); st.Size != 2 || st.Evictions != 0 {
		t.Errorf("stats = %+v", st)
	}
	if v, _ := c.Get("a"); v.(int) != 10 {
		t.Errorf("a = %v, want 10", v)
	}
}

func TestManagerDisableClearsAll(t *testing.T) {
	m := NewManager()
	m.Set(CacheDocuments, "doc:1", "hello")
	m.Set(CacheSearch, "q", []int{1, 2})

	m.SetEnabled(false)
	if _, ok := m.Get(CacheDocuments, "doc:1"); ok {
		t.Error("disabled manager returned a hit")
	}
	m.Set(CacheDocuments, "doc:1", "hello")

	m.SetEnabled(true)
	if _, ok := m.Get(CacheDocuments, "doc:1"); ok {
		t.Error("entries survived disable, or set landed while disabled")
	}
}

func TestManagerInvalidate(t *testing.T) {
	m := NewManager()
	m.Set(CacheDocuments, "doc:1", "x")
	m.Set(CacheTags, "tags:1", "y")

	m.Invalidate(CacheDocuments)
	if _, ok := m.Get(CacheDocuments, "doc:1"); ok {
		t.Error("invalidated cache still holds entry")
	}
	if _, ok := m.Get(CacheTags, "tags:1"); !ok {
		t.Error("unrelated cache was cleared")
	}
}

func TestManagerAggregateStats(t *testing.T) {
	m := NewManager()
	m.Set(CacheDocuments, "a", 1)
	m.Get(CacheDocuments, "a")
	m.Get(CacheSearch, "nope")

	stats := m.Stats()
	agg, ok := stats["all"]
	if !ok {
		t.Fatal("missing aggregate entry")
	}
	if agg.Hits != 1 || agg.Misses != 1 {
		t.Errorf("aggregate = %+v", agg)
	}
	if stats[CacheDocuments].Hits != 1 {
		t.Errorf("documents stats = %+v", stats[CacheDocuments])
	}
}

func TestWrapCachesResults(t *testing.T) {
	m := NewManager()
	calls := 0
	fn := func() (string, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := Wrap(m, CacheDocuments, func() string { return "key" }, fn)
		if err != nil || v != "value" {
			t.Fatalf("Wrap = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("underlying called %d times, want 1", calls)
	}
}

func TestWrapDoesNotCacheNil(t *testing.T) {
	m := NewManager()
	calls := 0
	fn := func() (*int, error) {
		calls++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		if v, err := Wrap(m, CacheDocuments, func() string { return "k" }, fn); v != nil || err != nil {
			t.Fatalf("Wrap = %v, %v", v, err)
		}
	}
	if calls != 2 {
		t.Errorf("nil result was cached: calls = %d", calls)
	}
}

func TestWrapDoesNotCacheNilSlicesOrMaps(t *testing.T) {
	m := NewManager()
	sliceCalls := 0
	for i := 0; i < 2; i++ {
		if _, err := Wrap(m, CacheSearch, func() string { return "s" }, func() ([]int, error) {
			sliceCalls++
			return nil, nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if sliceCalls != 2 {
		t.Errorf("nil slice was cached: calls = %d", sliceCalls)
	}

	mapCalls := 0
	for i := 0; i < 2; i++ {
		if _, err := Wrap(m, CacheTags, func() string { return "m" }, func() (map[string]int, error) {
			mapCalls++
			return nil, nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if mapCalls != 2 {
		t.Errorf("nil map was cached: calls = %d", mapCalls)
	}

	// An allocated but empty slice is a real result and must be cached.
	emptyCalls := 0
	for i := 0; i < 2; i++ {
		if _, err := Wrap(m, CacheSearch, func() string { return "e" }, func() ([]int, error) {
			emptyCalls++
			return []int{}, nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if emptyCalls != 1 {
		t.Errorf("empty slice not cached: calls = %d", emptyCalls)
	}
}

func TestWrapDoesNotCacheErrors(t *testing.T) {
	m := NewManager()
	calls := 0
	fn := func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	if _, err := Wrap(m, CacheDocuments, func() string { return "k" }, fn); err == nil {
		t.Fatal("expected error on first call")
	}
	v, err := Wrap(m, CacheDocuments, func() string { return "k" }, fn)
	if err != nil || v != "ok" {
		t.Fatalf("second call = %q, %v", v, err)
	}
}

func TestAccessBufferBatchFlush(t *testing.T) {
	var flushed map[int64]int64
	buf := NewAccessBuffer(func(ctx context.Context, counts map[int64]int64) error {
		flushed = counts
		return nil
	}, 3, time.Hour)

	ctx := context.Background()
	buf.Record(ctx, 1)
	buf.Record(ctx, 1)
	buf.Record(ctx, 2)
	if flushed != nil {
		t.Fatal("flushed before batch threshold")
	}
	buf.Record(ctx, 3) // third distinct id crosses the threshold

	if flushed == nil {
		t.Fatal("batch threshold did not trigger a flush")
	}
	if flushed[1] != 2 || flushed[2] != 1 || flushed[3] != 1 {
		t.Errorf("flushed = %v", flushed)
	}
	if buf.Pending() != 0 {
		t.Errorf("pending = %d after flush", buf.Pending())
	}
}

func TestAccessBufferIntervalFlush(t *testing.T) {
	flushes := 0
	buf := NewAccessBuffer(func(ctx context.Context, counts map[int64]int64) error {
		flushes++
		return nil
	}, 1000, 10*time.Millisecond)

	ctx := context.Background()
	buf.Record(ctx, 1)
	time.Sleep(20 * time.Millisecond)
	buf.Record(ctx, 2)

	if flushes != 1 {
		t.Errorf("flushes = %d, want 1", flushes)
	}
}

func TestAccessBufferFlushFailureRetainsCounts(t *testing.T) {
	fail := true
	buf := NewAccessBuffer(func(ctx context.Context, counts map[int64]int64) error {
		if fail {
			return errors.New("db locked")
		}
		return nil
	}, 1000, time.Hour)

	ctx := context.Background()
	buf.Record(ctx, 7)
	if err := buf.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if buf.Pending() != 1 {
		t.Errorf("counts lost on failed flush: pending = %d", buf.Pending())
	}

	fail = false
	if err := buf.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if buf.Pending() != 0 {
		t.Errorf("pending = %d after retry", buf.Pending())
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(64, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%16)
				c.Set(key, n)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if st := c.Stats(); st.Size > 64 {
		t.Errorf("size %d exceeds max", st.Size)
	}
}
