// Package cache provides a thread-safe in-memory document cache with TTL
// expiry, LRU eviction, and a byte-budget heuristic.
//
// Entries older than the TTL count as misses on access but stay in their
// slot until the periodic sweep removes them (lazy removal). Memory-pressure
// eviction runs before insertion and removes least-recently-accessed entries
// until occupancy falls to the low watermark.
//
// Example usage:
//
//	c := cache.New(cache.DefaultConfig(), logger)
//	c.Set("project:p1:hta", doc)
//	doc, ok := c.Get("project:p1:hta")
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// pressureWatermark is the occupancy fraction eviction drains to.
const pressureWatermark = 0.8

// Config configures the cache.
type Config struct {
	// TTL is the maximum entry age before it counts as stale.
	TTL time.Duration `koanf:"ttl"`

	// MaxEntries bounds the entry count (0 disables the bound).
	MaxEntries int `koanf:"max_entries"`

	// MaxBytes is the approximate memory budget (0 disables the bound).
	// Sizes are serialized-length estimates, never a hard per-entry cap.
	MaxBytes int64 `koanf:"max_bytes"`

	// SweepInterval is how often the background sweep removes expired
	// entries.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:           5 * time.Minute,
		MaxEntries:    1000,
		MaxBytes:      64 * 1024 * 1024,
		SweepInterval: time.Minute,
	}
}

// entry is one cached document with its accounting metadata.
type entry struct {
	value        map[string]any
	cachedAt     time.Time
	lastAccessed time.Time
	approxSize   int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a TTL + LRU document cache.
type Cache struct {
	mu      sync.Mutex
	cfg     *Config
	entries map[string]*entry
	bytes   int64

	hits      uint64
	misses    uint64
	evictions uint64

	metrics *Metrics // optional Prometheus mirror
	logger  *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache. A nil config uses defaults; a nil logger disables
// logging. Call Start to run the background TTL sweep.
func New(cfg *Config, logger *zap.Logger) *Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*entry),
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// SetMetrics attaches a Prometheus metrics mirror. Optional.
func (c *Cache) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Set stores a document under key, replacing any existing entry.
//
// If the entry-count or byte budget would be exceeded, an eviction pass runs
// before insertion (check-then-insert ordering).
func (c *Cache) Set(key string, value map[string]any) {
	size := approxSize(value)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.bytes -= old.approxSize
		delete(c.entries, key)
	}

	if c.cfg.MaxBytes > 0 && c.bytes+size > c.cfg.MaxBytes {
		c.evictToWatermark()
	}
	if c.cfg.MaxEntries > 0 {
		for len(c.entries) >= c.cfg.MaxEntries {
			if !c.evictLRU() {
				break
			}
		}
	}

	c.entries[key] = &entry{
		value:        value,
		cachedAt:     now,
		lastAccessed: now,
		approxSize:   size,
	}
	c.bytes += size
	c.publish()
}

// Get returns the document for key if present and younger than the TTL.
//
// A stale entry counts as a miss but keeps its slot until the next sweep;
// recency is updated only on valid hits.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.cachedAt) >= c.cfg.TTL {
		c.misses++
		if c.metrics != nil {
			c.metrics.RecordMiss()
		}
		return nil, false
	}

	e.lastAccessed = time.Now()
	c.hits++
	if c.metrics != nil {
		c.metrics.RecordHit()
	}
	return e.value, true
}

// Invalidate removes the entry for key immediately. Invoked after every
// successful write so the very next read is guaranteed fresh.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.bytes -= e.approxSize
		delete(c.entries, key)
		c.publish()
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.bytes = 0
	c.publish()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
		Bytes:     c.bytes,
	}
}

// Start launches the periodic TTL sweep. It runs until Stop is called and
// never blocks foreground read/write paths.
func (c *Cache) Start() {
	interval := c.cfg.SweepInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the background sweep. Safe to call multiple times.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Sweep removes all TTL-expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if time.Since(e.cachedAt) >= c.cfg.TTL {
			c.bytes -= e.approxSize
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("swept expired cache entries", zap.Int("removed", removed))
		c.publish()
	}
	return removed
}

// evictToWatermark removes LRU entries until occupancy is at or below the
// pressure watermark of the byte budget. Caller must hold the lock.
func (c *Cache) evictToWatermark() {
	target := int64(float64(c.cfg.MaxBytes) * pressureWatermark)
	for c.bytes > target {
		if !c.evictLRU() {
			return
		}
	}
}

// evictLRU removes the least recently accessed entry. Caller must hold the
// lock. Returns false when the cache is empty.
func (c *Cache) evictLRU() bool {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessed
			first = false
		}
	}
	if first {
		return false
	}

	c.bytes -= c.entries[oldestKey].approxSize
	delete(c.entries, oldestKey)
	c.evictions++
	if c.metrics != nil {
		c.metrics.RecordEviction()
	}
	return true
}

// publish pushes gauge values to the Prometheus mirror. Caller must hold the
// lock.
func (c *Cache) publish() {
	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries), c.bytes)
	}
}

// approxSize estimates the in-memory footprint of a document by its
// serialized length. A heuristic for the eviction policy, nothing more.
func approxSize(value map[string]any) int64 {
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
