package cache

import (
	"reflect"
	"sync"
	"time"
)

// Named caches registered by the manager.
const (
	CacheDocuments    = "documents"
	CacheTags         = "tags"
	CacheSearch       = "search"
	CacheAggregations = "aggregations"
)

// Manager owns the process's named caches. Disabling the manager clears
// every cache and turns Get/Set into no-ops until re-enabled.
type Manager struct {
	mu      sync.Mutex
	caches  map[string]*Cache
	enabled bool
}

// NewManager registers the standard caches with their capacities and TTLs.
func NewManager() *Manager {
	return &Manager{
		caches: map[string]*Cache{
			CacheDocuments:    New(256, 5*time.Minute),
			CacheTags:         New(128, 10*time.Minute),
			CacheSearch:       New(512, 2*time.Minute),
			CacheAggregations: New(64, 15*time.Minute),
		},
		enabled: true,
	}
}

// Get looks a key up in a named cache. Unknown names and a disabled
// manager both miss.
func (m *Manager) Get(cache, key string) (any, bool) {
	m.mu.Lock()
	c, ok := m.caches[cache]
	enabled := m.enabled
	m.mu.Unlock()
	if !ok || !enabled {
		return nil, false
	}
	return c.Get(key)
}

// Set stores a value in a named cache when enabled.
func (m *Manager) Set(cache, key string, value any) {
	m.mu.Lock()
	c, ok := m.caches[cache]
	enabled := m.enabled
	m.mu.Unlock()
	if !ok || !enabled {
		return
	}
	c.Set(key, value)
}

// Invalidate clears one named cache (mutation hook).
func (m *Manager) Invalidate(cache string) {
	m.mu.Lock()
	c, ok := m.caches[cache]
	m.mu.Unlock()
	if ok {
		c.Clear()
	}
}

// ClearAll empties every cache.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.caches {
		c.Clear()
	}
}

// Cleanup drops expired entries across all caches, returning the total.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	caches := make([]*Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.Cleanup()
	}
	return total
}

// SetEnabled toggles caching globally. Disabling clears all caches so no
// stale entries survive a later re-enable.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	caches := make([]*Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	if !enabled {
		for _, c := range caches {
			c.Clear()
		}
	}
}

// Enabled reports the global toggle.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Stats returns per-cache stats plus an "all" aggregate.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	caches := make(map[string]*Cache, len(m.caches))
	for name, c := range m.caches {
		caches[name] = c
	}
	m.mu.Unlock()

	out := make(map[string]Stats, len(caches)+1)
	var agg Stats
	for name, c := range caches {
		st := c.Stats()
		out[name] = st
		agg.Hits += st.Hits
		agg.Misses += st.Misses
		agg.Evictions += st.Evictions
		agg.Expirations += st.Expirations
		agg.Size += st.Size
		agg.MaxSize += st.MaxSize
	}
	if total := agg.Hits + agg.Misses; total > 0 {
		agg.HitRate = float64(agg.Hits) / float64(total)
	}
	out["all"] = agg
	return out
}

// Wrap decorates fn with a named cache. keyFn builds the cache key; a nil
// result from fn is treated as "missing" and is not cached.
func Wrap[T any](m *Manager, cache string, keyFn func() string, fn func() (T, error)) (T, error) {
	key := keyFn()
	if v, ok := m.Get(cache, key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	if !isMissing(v) {
		m.Set(cache, key, v)
	}
	return v, nil
}

// isMissing reports whether v is nil once unboxed. A typed nil pointer
// stored in an interface does not compare == nil, so the check has to go
// through reflection.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return true
		}
	}
	if z, ok := v.(interface{ IsZero() bool }); ok {
		return z.IsZero()
	}
	return false
}
