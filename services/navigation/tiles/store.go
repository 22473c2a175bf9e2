// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tiles

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/singleflight"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	"github.com/wayfarer-systems/terminus/services/navigation/storage/badger"
)

// CacheMetrics receives tile cache hit and miss signals. Implementations
// must not block: signals fire on the per-tick read path.
type CacheMetrics interface {
	TileCacheHit(ctx context.Context)
	TileCacheMiss(ctx context.Context)
}

// StoreOptions configures the tile store.
type StoreOptions struct {
	// TileSize is the grid cell edge in meters.
	TileSize float64
	// MaxTilesPerFloor bounds generation per floor.
	MaxTilesPerFloor int
	// CacheEntries bounds the in-process decompressed tile cache.
	CacheEntries int
	// Logger for compression fallbacks and prefetch failures. Optional.
	Logger *slog.Logger
	// Metrics receives cache hit/miss signals. Optional.
	Metrics CacheMetrics
}

// DefaultStoreOptions returns production defaults.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		TileSize:         DefaultTileSize,
		MaxTilesPerFloor: DefaultMaxTilesPerFloor,
		CacheEntries:     2048,
	}
}

// StoreStats is a snapshot of tile store counters.
type StoreStats struct {
	CacheEntries int
	CacheHits    int64
	CacheMisses  int64
	StoreReads   int64
	StoreWrites  int64
}

// Store persists generated tiles in BadgerDB and keeps decompressed tiles
// in an in-process LRU so the per-tick read path rarely touches disk.
//
// Safe for concurrent use. Concurrent misses for the same tile collapse
// into a single disk read via singleflight.
type Store struct {
	db      *badger.DB
	options StoreOptions

	mu     sync.Mutex
	cache  map[string]*list.Element // key -> element holding *Tile
	lru    *list.List
	flight singleflight.Group

	hits   int64
	misses int64
	reads  int64
	writes int64
}

type lruEntry struct {
	key  string
	tile *Tile
}

// NewStore creates a tile store over the given database; zero-value option
// fields fall back to defaults.
func NewStore(db *badger.DB, opts StoreOptions) *Store {
	def := DefaultStoreOptions()
	if opts.TileSize <= 0 {
		opts.TileSize = def.TileSize
	}
	if opts.MaxTilesPerFloor <= 0 {
		opts.MaxTilesPerFloor = def.MaxTilesPerFloor
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = def.CacheEntries
	}
	return &Store{
		db:      db,
		options: opts,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// TileSize returns the configured grid cell edge in meters.
func (s *Store) TileSize() float64 {
	return s.options.TileSize
}

// GenerateTerminal builds and persists tiles for every floor of the graph,
// replacing whatever was stored for the terminal before.
//
// All-or-nothing per floor: a floor exceeding the tile ceiling aborts the
// run with ErrTileLimitExceeded and leaves earlier floors regenerated.
func (s *Store) GenerateTerminal(ctx context.Context, g *spatial.RoutingGraph) (int, error) {
	total := 0
	for _, fb := range g.Floors() {
		n, err := s.GenerateFloor(ctx, g, fb.Floor)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// GenerateFloor builds and persists the tiles of one floor, clearing the
// floor's previous tiles first.
func (s *Store) GenerateFloor(ctx context.Context, g *spatial.RoutingGraph, floor int) (int, error) {
	generated, err := GenerateFloor(g, floor, s.options.TileSize, s.options.MaxTilesPerFloor)
	if err != nil {
		return 0, err
	}

	if err := s.ClearFloorTiles(ctx, g.Terminal, floor); err != nil {
		return 0, err
	}

	err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		for _, t := range generated {
			payload, err := Encode(t, s.options.Logger)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(t.Key()), payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("persist floor %d tiles: %w", floor, err)
	}
	atomic.AddInt64(&s.writes, int64(len(generated)))
	return len(generated), nil
}

// Get returns one tile by coordinate, from cache or disk.
func (s *Store) Get(ctx context.Context, terminal string, floor, x, y int) (*Tile, error) {
	key := TileKey(terminal, floor, x, y)

	if t, ok := s.cacheGet(key); ok {
		atomic.AddInt64(&s.hits, 1)
		if s.options.Metrics != nil {
			s.options.Metrics.TileCacheHit(ctx)
		}
		return t, nil
	}
	atomic.AddInt64(&s.misses, 1)
	if s.options.Metrics != nil {
		s.options.Metrics.TileCacheMiss(ctx)
	}

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if t, ok := s.cacheGet(key); ok {
			return t, nil
		}
		t, err := s.readTile(ctx, key)
		if err != nil {
			return nil, err
		}
		s.cachePut(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Tile), nil
}

// TilesForArea returns every tile of a floor overlapping the given bounds.
// Missing tiles are skipped: the area may legitimately extend past the
// floor's generated extent.
func (s *Store) TilesForArea(ctx context.Context, terminal string, floor int, area spatial.Rect, grid Grid) ([]*Tile, error) {
	minTX, minTY, maxTX, maxTY := grid.CellsForRect(area)

	var out []*Tile
	for ty := minTY; ty <= maxTY; ty++ {
		for tx := minTX; tx <= maxTX; tx++ {
			if tx < 0 || ty < 0 {
				continue
			}
			t, err := s.Get(ctx, terminal, floor, tx, ty)
			if err != nil {
				if errors.Is(err, ErrTileNotFound) {
					continue
				}
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Prefetch warms the cache around a position in the background. Errors are
// logged, never surfaced: a failed prefetch is a future cache miss, not a
// request failure.
func (s *Store) Prefetch(ctx context.Context, terminal string, floor int, pos spatial.Position, radius float64, grid Grid) {
	area := spatial.Rect{
		MinX: pos.X - radius,
		MinY: pos.Y - radius,
		MaxX: pos.X + radius,
		MaxY: pos.Y + radius,
	}
	go func() {
		if _, err := s.TilesForArea(ctx, terminal, floor, area, grid); err != nil {
			if s.options.Logger != nil {
				s.options.Logger.Debug("tile prefetch failed",
					slog.String("terminal", terminal),
					slog.Int("floor", floor),
					slog.String("error", err.Error()))
			}
		}
	}()
}

// ClearFloorTiles drops every stored tile of a floor and purges matching
// in-process cache entries.
func (s *Store) ClearFloorTiles(ctx context.Context, terminal string, floor int) error {
	prefix := FloorPrefix(terminal, floor)
	if err := s.db.DeletePrefix(ctx, []byte(prefix)); err != nil {
		return fmt.Errorf("clear tiles %s: %w", prefix, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, elem := range s.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			s.lru.Remove(elem)
			delete(s.cache, key)
		}
	}
	return nil
}

// Stats returns current counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	entries := len(s.cache)
	s.mu.Unlock()
	return StoreStats{
		CacheEntries: entries,
		CacheHits:    atomic.LoadInt64(&s.hits),
		CacheMisses:  atomic.LoadInt64(&s.misses),
		StoreReads:   atomic.LoadInt64(&s.reads),
		StoreWrites:  atomic.LoadInt64(&s.writes),
	}
}

func (s *Store) readTile(ctx context.Context, key string) (*Tile, error) {
	var payload []byte
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
		}
		return nil, fmt.Errorf("read tile %s: %w", key, err)
	}
	atomic.AddInt64(&s.reads, 1)
	return Decode(payload)
}

func (s *Store) cacheGet(key string) (*Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	s.lru.MoveToFront(elem)
	return elem.Value.(*lruEntry).tile, true
}

func (s *Store) cachePut(key string, t *Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.cache[key]; ok {
		elem.Value.(*lruEntry).tile = t
		s.lru.MoveToFront(elem)
		return
	}
	for len(s.cache) >= s.options.CacheEntries {
		oldest := s.lru.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*lruEntry)
		s.lru.Remove(oldest)
		delete(s.cache, entry.key)
	}
	s.cache[key] = s.lru.PushFront(&lruEntry{key: key, tile: t})
}
