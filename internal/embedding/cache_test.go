package embedding

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Eviction(t *testing.T) {
	c := newMemoryCache(10, 0.8, 0, nil)

	// Entries 0-4 are hot, 5-9 cold.
	for i := 0; i < 10; i++ {
		c.put(fmt.Sprintf("key%d", i), []float32{float32(i)}, time.Now())
	}
	for i := 0; i < 5; i++ {
		for n := 0; n < 3; n++ {
			_, ok := c.get(fmt.Sprintf("key%d", i))
			require.True(t, ok)
		}
	}

	// Exceeding the ceiling keeps the top 80% by hit count.
	c.put("overflow", []float32{99}, time.Now())

	assert.LessOrEqual(t, c.len(), 9)
	for i := 0; i < 5; i++ {
		_, ok := c.get(fmt.Sprintf("key%d", i))
		assert.True(t, ok, "hot entry key%d must survive eviction", i)
	}
}

func TestMemoryCache_EvictionMetric(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.EvictionsTotal)

	c := newMemoryCache(10, 0.8, 0, m)
	for i := 0; i < 11; i++ {
		c.put(fmt.Sprintf("key%d", i), []float32{float32(i)}, time.Now())
	}

	require.Positive(t, c.evictions)
	assert.Equal(t, before+float64(c.evictions), testutil.ToFloat64(m.EvictionsTotal),
		"every drop reaches the exported counter")
}

func TestMemoryCache_TTL(t *testing.T) {
	c := newMemoryCache(10, 0.8, 10*time.Millisecond, nil)

	c.put("k", []float32{1}, time.Now().Add(-time.Second))
	_, ok := c.get("k")
	assert.False(t, ok, "expired entry must not be returned")

	c.put("fresh", []float32{1}, time.Now())
	_, ok = c.get("fresh")
	assert.True(t, ok)
}

func TestMemoryCache_HitCounting(t *testing.T) {
	c := newMemoryCache(10, 0.8, 0, nil)
	c.put("k", []float32{1, 2}, time.Now())

	vec, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, vec)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, int64(1), c.entries["k"].hits)
}
