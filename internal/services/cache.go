package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"retail-analytics/internal/loader"
	"retail-analytics/internal/pipeline"
)

// CacheKey identifies one cleaned table: where it was loaded from, which
// columns were read and how it was cleaned. Any change yields a different key.
type CacheKey struct {
	Source loader.Source
	Schema loader.Schema
	Config pipeline.Config
}

func (k CacheKey) String() string {
	return k.Source.String() + "|" + k.Schema.String() + "|" + k.Config.String()
}

// CachedTable is a cleaned table plus the diagnostics of the run that built it.
type CachedTable struct {
	Table    *pipeline.CleanedTable
	Stats    pipeline.Stats
	LoadedAt time.Time
}

type LoadFunc func(ctx context.Context) (*CachedTable, error)

// TableCache memoises cleaned tables per CacheKey. Concurrent misses for
// the same key share one load. Failed loads are not cached.
type TableCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedTable
	group   singleflight.Group
}

func NewTableCache() *TableCache {
	return &TableCache{entries: make(map[string]*CachedTable)}
}

func (c *TableCache) Get(key CacheKey) (*CachedTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key.String()]
	return e, ok
}

// GetOrLoad returns the cached entry for key, calling load on a miss.
// hit reports whether the entry came from the cache.
func (c *TableCache) GetOrLoad(ctx context.Context, key CacheKey, load LoadFunc) (entry *CachedTable, hit bool, err error) {
	if e, ok := c.Get(key); ok {
		return e, true, nil
	}

	k := key.String()
	v, err, _ := c.group.Do(k, func() (any, error) {
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		e, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[k] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CachedTable), false, nil
}

func (c *TableCache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

func (c *TableCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *TableCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
