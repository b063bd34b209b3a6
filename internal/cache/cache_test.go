package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		TTL:           5 * time.Minute,
		MaxEntries:    100,
		MaxBytes:      1 << 20,
		SweepInterval: 0, // no background sweep in tests
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	c := New(nil, nil)
	require.NotNil(t, c)
	assert.Equal(t, DefaultConfig().TTL, c.cfg.TTL)
}

func TestCache_SetAndGet(t *testing.T) {
	c := New(testConfig(), nil)

	doc := map[string]any{"goal": "Learn X"}
	c.Set("project:p1:config", doc)

	got, ok := c.Get("project:p1:config")
	require.True(t, ok)
	assert.Equal(t, "Learn X", got["goal"])
}

func TestCache_GetMissingKey(t *testing.T) {
	c := New(testConfig(), nil)

	_, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestCache_TTLExpiryCountsAsMiss(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 50 * time.Millisecond
	c := New(cfg, nil)

	c.Set("k", map[string]any{"a": 1})
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	// Stale entry counts as a miss but keeps its slot until the sweep.
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Entries)

	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_Invalidate(t *testing.T) {
	c := New(testConfig(), nil)

	c.Set("k", map[string]any{"a": 1})
	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Bytes)
}

func TestCache_InvalidateMissingKeyIsNoop(t *testing.T) {
	c := New(testConfig(), nil)
	c.Invalidate("absent")
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_Clear(t *testing.T) {
	c := New(testConfig(), nil)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), map[string]any{"i": i})
	}
	c.Clear()

	assert.Zero(t, c.Stats().Entries)
	assert.Zero(t, c.Stats().Bytes)
}

func TestCache_CountEvictionRemovesLRU(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntries = 3
	c := New(cfg, nil)

	c.Set("k0", map[string]any{"i": 0})
	c.Set("k1", map[string]any{"i": 1})
	c.Set("k2", map[string]any{"i": 2})

	// Touch everything except k0 so it is the LRU victim.
	_, _ = c.Get("k1")
	_, _ = c.Get("k2")

	c.Set("k3", map[string]any{"i": 3})

	_, ok := c.Get("k0")
	assert.False(t, ok, "LRU entry should be evicted")
	_, ok = c.Get("k1")
	assert.True(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCache_MemoryPressureEvictsToWatermark(t *testing.T) {
	// Each payload serializes to exactly 110 bytes: {"pad":"<100 a's>"}.
	payload := func() map[string]any {
		return map[string]any{"pad": strings.Repeat("a", 100)}
	}

	cfg := testConfig()
	cfg.MaxEntries = 0
	cfg.MaxBytes = 550
	c := New(cfg, nil)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), payload())
	}
	require.Equal(t, int64(550), c.Stats().Bytes)

	// Refresh recency on everything except k0.
	for i := 1; i < 5; i++ {
		_, ok := c.Get(fmt.Sprintf("k%d", i))
		require.True(t, ok)
	}

	// Exceeding the budget drains occupancy to <=80% before inserting.
	c.Set("k5", payload())

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Bytes, cfg.MaxBytes)
	assert.GreaterOrEqual(t, stats.Evictions, uint64(1))

	_, ok := c.Get("k0")
	assert.False(t, ok, "least-recently-used entry should go first")
	_, ok = c.Get("k5")
	assert.True(t, ok)
}

func TestCache_SetReplacesExistingEntry(t *testing.T) {
	c := New(testConfig(), nil)

	c.Set("k", map[string]any{"v": "first"})
	c.Set("k", map[string]any{"v": "updated"})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "updated", got["v"])
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestStats_HitRate(t *testing.T) {
	c := New(testConfig(), nil)

	assert.Zero(t, c.Stats().HitRate())

	c.Set("k", map[string]any{"a": 1})
	_, _ = c.Get("k")
	_, _ = c.Get("k")
	_, _ = c.Get("absent")

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)
}

func TestCache_BackgroundSweep(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 30 * time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	c := New(cfg, nil)
	c.Start()
	defer c.Stop()

	c.Set("k", map[string]any{"a": 1})

	assert.Eventually(t, func() bool {
		return c.Stats().Entries == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCache_StopIsIdempotent(t *testing.T) {
	c := New(testConfig(), nil)
	c.Start()
	c.Stop()
	c.Stop()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(testConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", id%5)
			for j := 0; j < 100; j++ {
				c.Set(key, map[string]any{"j": j})
				c.Get(key)
				if j%10 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_PrometheusMirror(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntries = 2
	c := New(cfg, nil)

	m := NewMetrics()
	c.SetMetrics(m)

	// Registration is global, so assert on deltas.
	hits := testutil.ToFloat64(m.HitsTotal)
	misses := testutil.ToFloat64(m.MissesTotal)
	evictions := testutil.ToFloat64(m.EvictionsTotal)

	c.Set("k0", map[string]any{"i": 0})
	c.Set("k1", map[string]any{"i": 1})

	_, ok := c.Get("k0")
	require.True(t, ok)
	_, ok = c.Get("absent")
	require.False(t, ok)

	// Third insert exceeds the entry bound and evicts the LRU entry.
	c.Set("k2", map[string]any{"i": 2})

	assert.Equal(t, hits+1, testutil.ToFloat64(m.HitsTotal))
	assert.Equal(t, misses+1, testutil.ToFloat64(m.MissesTotal))
	assert.Equal(t, evictions+1, testutil.ToFloat64(m.EvictionsTotal))
	assert.Equal(t, float64(c.Stats().Entries), testutil.ToFloat64(m.Entries))
	assert.Equal(t, float64(c.Stats().Bytes), testutil.ToFloat64(m.Bytes))
}

func TestNewMetrics_Idempotent(t *testing.T) {
	// Repeated calls must return the same registered set, never panic on
	// duplicate registration.
	assert.Same(t, NewMetrics(), NewMetrics())
}
