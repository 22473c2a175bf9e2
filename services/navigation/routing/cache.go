// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// ComputeFunc builds a route on cache miss.
type ComputeFunc func(ctx context.Context) (*Route, error)

// CacheOptions configures the route cache.
type CacheOptions struct {
	// MaxEntries bounds the number of cached routes. LRU eviction.
	MaxEntries int
	// TTL is how long a computed route stays valid. Routes go stale when
	// the underlying graph changes, so this is kept short.
	TTL time.Duration
}

// DefaultCacheOptions returns the production defaults.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxEntries: 4096,
		TTL:        5 * time.Minute,
	}
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	EntryCount int
	Hits       int64
	Misses     int64
	Evictions  int64
	Computes   int64
}

type cacheEntry struct {
	route      *Route
	builtAt    time.Time
	lruElement *list.Element
}

// RouteCache memoizes computed routes keyed by endpoints and constraint
// fingerprint, with TTL expiry and LRU eviction.
//
// Safe for concurrent use. Concurrent misses for the same key are collapsed
// into a single computation via singleflight.
type RouteCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lru     *list.List
	flight  singleflight.Group
	options CacheOptions

	hits      int64
	misses    int64
	evictions int64
	computes  int64
}

// NewRouteCache creates a RouteCache with the given options; zero-value
// fields fall back to defaults.
func NewRouteCache(opts CacheOptions) *RouteCache {
	def := DefaultCacheOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	return &RouteCache{
		entries: make(map[string]*cacheEntry),
		lru:     list.New(),
		options: opts,
	}
}

// CacheKey derives the cache key for a route request. Two requests with the
// same endpoints and equivalent constraints share one entry.
func CacheKey(terminal, startID, endID string, c spatial.AccessibilityConstraints) string {
	return fmt.Sprintf("%s|%s|%s|%s", terminal, startID, endID, c.Key())
}

// GetOrCompute returns the cached route for key, computing and caching it
// on miss. Computation errors are returned to every collapsed caller and
// are not cached; a failed route computation is cheap to retry relative to
// a graph build.
func (c *RouteCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (*Route, error) {
	if route, ok := c.get(key); ok {
		return route, nil
	}

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Re-check under flight: a concurrent caller may have populated
		// the entry between our miss and this closure running.
		if route, ok := c.get(key); ok {
			return route, nil
		}
		route, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		atomic.AddInt64(&c.computes, 1)
		c.put(key, route)
		return route, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Route), nil
}

func (c *RouteCache) get(key string) (*Route, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if time.Since(entry.builtAt) > c.options.TTL {
		c.mu.RUnlock()
		c.removeExpired(key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	route := entry.route
	c.mu.RUnlock()

	c.mu.Lock()
	if entry.lruElement != nil {
		c.lru.MoveToFront(entry.lruElement)
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return route, true
}

func (c *RouteCache) put(key string, route *Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.route = route
		existing.builtAt = time.Now()
		c.lru.MoveToFront(existing.lruElement)
		return
	}

	for len(c.entries) >= c.options.MaxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(string))
		atomic.AddInt64(&c.evictions, 1)
	}

	entry := &cacheEntry{route: route, builtAt: time.Now()}
	entry.lruElement = c.lru.PushFront(key)
	c.entries[key] = entry
}

// InvalidateTerminal drops every cached route for a terminal. Called when
// the terminal's graph is swapped for a new version.
func (c *RouteCache) InvalidateTerminal(terminal string) {
	prefix := terminal + "|"
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			c.removeLocked(key)
		}
	}
}

// Clear drops every cached route.
func (c *RouteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lru.Init()
}

// Stats returns current cache counters.
func (c *RouteCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		EntryCount: len(c.entries),
		Hits:       atomic.LoadInt64(&c.hits),
		Misses:     atomic.LoadInt64(&c.misses),
		Evictions:  atomic.LoadInt64(&c.evictions),
		Computes:   atomic.LoadInt64(&c.computes),
	}
}

func (c *RouteCache) removeExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.builtAt) > c.options.TTL {
		c.removeLocked(key)
	}
}

// removeLocked removes an entry (must hold write lock).
func (c *RouteCache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	if entry.lruElement != nil {
		c.lru.Remove(entry.lruElement)
	}
	delete(c.entries, key)
}
