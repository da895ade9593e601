package embedding

import (
	"context"
	"sort"
	"sync"
	"time"
)

// KV is the persistent key/value tier of the embedding cache.
// Entries are content-addressed and immutable once written.
type KV interface {
	// Get returns the vector and its creation time for a content hash.
	// ok is false on a miss; err is reserved for storage failures.
	Get(ctx context.Context, key string) (vec []float32, createdAt time.Time, ok bool, err error)

	// Put stores a vector under a content hash.
	Put(ctx context.Context, key string, vec []float32, createdAt time.Time) error
}

type memEntry struct {
	vec       []float32
	hits      int64
	createdAt time.Time
}

// memoryCache is the in-process cache tier. When entry count exceeds the
// ceiling, the highest-hit-count fraction is retained and the rest dropped,
// approximating LFU.
type memoryCache struct {
	mu             sync.Mutex
	entries        map[string]*memEntry
	maxEntries     int
	retainFraction float64
	ttl            time.Duration
	evictions      int64
	metrics        *Metrics
}

func newMemoryCache(maxEntries int, retainFraction float64, ttl time.Duration, metrics *Metrics) *memoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if retainFraction <= 0 || retainFraction > 1 {
		retainFraction = 0.8
	}
	return &memoryCache{
		entries:        make(map[string]*memEntry),
		maxEntries:     maxEntries,
		retainFraction: retainFraction,
		ttl:            ttl,
		metrics:        metrics,
	}
}

func (c *memoryCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	entry.hits++
	return entry.vec, true
}

func (c *memoryCache) put(key string, vec []float32, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = &memEntry{vec: vec, createdAt: createdAt}
}

// evictLocked drops the lowest-hit entries, retaining retainFraction of the
// ceiling. Must be called with mu held.
func (c *memoryCache) evictLocked() {
	type scored struct {
		key  string
		hits int64
	}
	all := make([]scored, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, scored{key: k, hits: e.hits})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].hits > all[j].hits })

	keep := int(float64(c.maxEntries) * c.retainFraction)
	for _, s := range all[keep:] {
		delete(c.entries, s.key)
		c.evictions++
		if c.metrics != nil {
			c.metrics.EvictionsTotal.Inc()
		}
	}
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
