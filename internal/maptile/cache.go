package maptile

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a concurrent-safe LRU of tile images with TTL expiry.
type Cache struct {
	mu         sync.Mutex
	entries    map[Tile]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64

	// now allows tests to control expiry.
	now func() time.Time
}

type cacheEntry struct {
	tile      Tile
	data      []byte
	createdAt time.Time
}

// CacheStats reports cache occupancy and hit rate.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a cache holding at most maxEntries tiles for ttl each.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries:    make(map[Tile]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached image for tile, or nil on miss or expiry.
func (c *Cache) Get(tile Tile) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[tile]
	if !ok {
		c.misses.Add(1)
		return nil
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.createdAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, tile)
		c.misses.Add(1)
		return nil
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.data
}

// Put stores data for tile, evicting the least recently used entry when full.
func (c *Cache) Put(tile Tile, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[tile]; ok {
		el.Value = &cacheEntry{tile: tile, data: data, createdAt: c.now()}
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).tile)
	}

	c.entries[tile] = c.order.PushFront(&cacheEntry{tile: tile, data: data, createdAt: c.now()})
}

// Stats returns cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
	}
}
