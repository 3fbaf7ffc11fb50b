package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

// cacheEntry pairs a reading with its insertion time for TTL checks and
// oldest-first eviction.
type cacheEntry struct {
	reading  *types.WeatherReading
	storedAt time.Time
}

// Cache is a TTL- and size-bounded reading cache keyed by rounded coordinate,
// hour bucket and provider. Safe for concurrent use.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache with the given entry TTL and size bound.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// CacheKey builds the cache key for a coordinate, forecast hour and provider.
// Coordinates are rounded to two decimals (~1km) so nearby corridor points
// share entries.
func CacheKey(coord types.Coordinate, at time.Time, provider string) string {
	return fmt.Sprintf("%.2f:%.2f:%s:%s", coord.Lat, coord.Lon, at.UTC().Format("2006010215"), provider)
}

// Get returns the cached reading for key if present and not expired.
func (c *Cache) Get(key string) (*types.WeatherReading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.reading, true
}

// Put stores a reading, evicting the oldest entry when the size bound is
// exceeded.
func (c *Cache) Put(key string, reading *types.WeatherReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{reading: reading, storedAt: c.now()}
	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the entry with the oldest storedAt. Caller must
// hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were purged.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	purged := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
			purged++
		}
	}
	return purged
}

// StartSweeper purges expired entries on the given interval until ctx is
// done, independent of read traffic.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
