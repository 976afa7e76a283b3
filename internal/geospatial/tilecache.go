package geospatial

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind selects one of the three derived artifacts cached per tile. The
// value doubles as the cache key suffix.
type Kind string

const (
	KindFull      Kind = ""
	KindEssential Kind = "_essential"
	KindErrors    Kind = "_errors"
)

// RefreshFunc repopulates a single tile: fetch, conflate, derive, and put
// all three artifacts back with fresh TTLs.
type RefreshFunc func(ctx context.Context, tile Tile)

// ArtifactTTLs holds the independent time-to-live of the three artifacts.
type ArtifactTTLs struct {
	Full      time.Duration
	Essential time.Duration
	Errors    time.Duration
}

type cacheEntry struct {
	value      any
	tile       Tile
	kind       Kind
	expiresAt  time.Time
	refreshing bool
}

// TileCache is a concurrent-safe artifact cache keyed by tile. Expiry of a
// full artifact schedules an asynchronous repopulation of exactly that tile
// instead of deleting the entry: the stale value stays servable until the
// refresh lands. Expiry of the essential or errors artifact alone is a
// no-op; both are only ever rewritten alongside the full artifact.
type TileCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	refresh RefreshFunc
	sweep   time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
	stale   atomic.Int64
}

// CacheStats contains cache performance counters.
type CacheStats struct {
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	StaleServed int64   `json:"stale_served"`
	HitRate     float64 `json:"hit_rate"`
}

// NewTileCache creates a TileCache sweeping for expired full artifacts at
// the given interval.
func NewTileCache(sweep time.Duration) *TileCache {
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	return &TileCache{
		entries: make(map[string]*cacheEntry),
		sweep:   sweep,
	}
}

// SetRefreshFunc installs the repopulation callback. Must be called before
// Start.
func (c *TileCache) SetRefreshFunc(fn RefreshFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh = fn
}

// Get retrieves a cached artifact. ok is false only when the tile has never
// been populated (or was evicted); stale marks a value past its TTL that is
// still being served while the refresh runs.
func (c *TileCache) Get(tile Tile, kind Kind) (value any, ok bool, stale bool) {
	c.mu.RLock()
	entry, found := c.entries[tile.Key()+string(kind)]
	c.mu.RUnlock()

	if !found {
		c.misses.Add(1)
		return nil, false, false
	}
	c.hits.Add(1)
	if time.Now().After(entry.expiresAt) {
		c.stale.Add(1)
		return entry.value, true, true
	}
	return entry.value, true, false
}

// Put stores one artifact, always overwriting.
func (c *TileCache) Put(tile Tile, kind Kind, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(tile, kind, value, ttl)
}

// PutArtifacts writes the three derived artifacts of a tile together, under
// one lock, so no reader observes a partially populated tile.
func (c *TileCache) PutArtifacts(tile Tile, full, essential, errors any, ttls ArtifactTTLs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(tile, KindFull, full, ttls.Full)
	c.putLocked(tile, KindEssential, essential, ttls.Essential)
	c.putLocked(tile, KindErrors, errors, ttls.Errors)
}

func (c *TileCache) putLocked(tile Tile, kind Kind, value any, ttl time.Duration) {
	c.entries[tile.Key()+string(kind)] = &cacheEntry{
		value:     value,
		tile:      tile,
		kind:      kind,
		expiresAt: time.Now().Add(ttl),
	}
}

// Evict removes all three artifacts of a tile.
func (c *TileCache) Evict(tile Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range []Kind{KindFull, KindEssential, KindErrors} {
		delete(c.entries, tile.Key()+string(kind))
	}
}

// Start runs the expiry sweeper until ctx is done. Each sweep schedules one
// repopulation per expired full artifact; a tile is not rescheduled while
// its previous refresh is still in flight.
func (c *TileCache) Start(ctx context.Context) {
	log := zap.L().With(zap.String("component", "tile_cache"))
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tile := range c.claimExpired() {
				log.Debug("scheduling tile refresh", zap.String("tile", tile.Key()))
				go c.runRefresh(ctx, tile)
			}
		}
	}
}

// claimExpired marks expired, idle full entries as refreshing and returns
// their tiles.
func (c *TileCache) claimExpired() []Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refresh == nil {
		return nil
	}

	now := time.Now()
	var due []Tile
	for _, entry := range c.entries {
		if entry.kind != KindFull || entry.refreshing || now.Before(entry.expiresAt) {
			continue
		}
		entry.refreshing = true
		due = append(due, entry.tile)
	}
	return due
}

func (c *TileCache) runRefresh(ctx context.Context, tile Tile) {
	c.refresh(ctx, tile)

	// Clear the in-flight marker. A successful refresh replaced the entry
	// already; after a failed one this re-arms the next sweep.
	c.mu.Lock()
	if entry, ok := c.entries[tile.Key()+string(KindFull)]; ok {
		entry.refreshing = false
	}
	c.mu.Unlock()
}

// Stats returns cache performance counters.
func (c *TileCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:     entries,
		Hits:        hits,
		Misses:      misses,
		StaleServed: c.stale.Load(),
		HitRate:     hitRate,
	}
}
