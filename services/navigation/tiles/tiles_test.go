// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tiles

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	"github.com/wayfarer-systems/terminus/services/navigation/storage/badger"
)

// gridTerminal builds a single-floor graph whose nodes span a width x height
// rectangle, with a corridor chain connecting the corners.
func gridTerminal(t *testing.T, terminal string, width, height float64) *spatial.RoutingGraph {
	t.Helper()
	nodes := []spatial.Node{
		{ID: "nw", X: 0, Y: height, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "ne", X: width, Y: height, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "sw", X: 0, Y: 0, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "se", X: width, Y: 0, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "mid", X: width / 2, Y: height / 2, Floor: 1, Type: spatial.NodePOI, IsPOI: true, Name: "Gate B7"},
	}
	edges := []spatial.Edge{
		{From: "sw", To: "se", Type: spatial.EdgeCorridor, DistanceMeters: width, IsAccessible: true},
		{From: "sw", To: "nw", Type: spatial.EdgeCorridor, DistanceMeters: height, IsAccessible: true},
		{From: "sw", To: "mid", Type: spatial.EdgeCorridor, DistanceMeters: 1 + width/2, IsAccessible: true},
		{From: "mid", To: "ne", Type: spatial.EdgeCorridor, DistanceMeters: 1 + width/2, IsAccessible: true},
	}
	g, err := spatial.NewRoutingGraph(terminal, 1, nodes, edges,
		[]spatial.FloorBounds{{Floor: 1, MinZ: 0, MaxZ: 4}})
	require.NoError(t, err)
	return g
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tile := &Tile{
		Terminal: "SEA-A",
		Floor:    1,
		X:        2,
		Y:        3,
		Bounds:   spatial.Rect{MinX: 40, MinY: 60, MaxX: 60, MaxY: 80},
		Nodes: []spatial.Node{
			{ID: "g7", X: 45, Y: 61, Floor: 1, Type: spatial.NodePOI, IsPOI: true, Name: "Gate B7"},
		},
		Edges: []TileEdge{
			{From: "g7", To: "c1", Type: spatial.EdgeCorridor, FromX: 45, FromY: 61, ToX: 70, ToY: 61, Accessible: true},
		},
		GraphVersion: 7,
		GeneratedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	payload, err := Encode(tile, nil)
	require.NoError(t, err)
	assert.Equal(t, formatGzip, payload[0])

	back, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, tile.Terminal, back.Terminal)
	assert.Equal(t, tile.Bounds, back.Bounds)
	assert.Equal(t, tile.Nodes, back.Nodes)
	assert.Equal(t, tile.Edges, back.Edges)
	assert.Equal(t, tile.GraphVersion, back.GraphVersion)
	assert.True(t, tile.GeneratedAt.Equal(back.GeneratedAt))
}

func TestDecode_RawFallbackFormat(t *testing.T) {
	payload := append([]byte{formatRaw}, []byte(`{"terminal":"SEA-A","floor":1,"x":0,"y":0}`)...)
	tile, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "SEA-A", tile.Terminal)

	_, err = Decode([]byte{0x7f, 'x'})
	assert.Error(t, err, "unknown format byte must fail")

	_, err = Decode([]byte{formatGzip})
	assert.Error(t, err, "truncated payload must fail")
}

func TestGenerateFloor_TileCounts(t *testing.T) {
	// 100x100m floor at 20m tiles -> 5x5 grid.
	g := gridTerminal(t, "SEA-A", 100, 100)
	generated, err := GenerateFloor(g, 1, 20, 0)
	require.NoError(t, err)
	assert.Len(t, generated, 25)

	// 40x40m floor -> 2x2 grid.
	small := gridTerminal(t, "SEA-B", 40, 40)
	generated, err = GenerateFloor(small, 1, 20, 0)
	require.NoError(t, err)
	assert.Len(t, generated, 4)
}

func TestGenerateFloor_EveryNodeInExactlyOneTile(t *testing.T) {
	g := gridTerminal(t, "SEA-A", 100, 100)
	generated, err := GenerateFloor(g, 1, 20, 0)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, tile := range generated {
		for _, n := range tile.Nodes {
			seen[n.ID]++
		}
	}
	for _, n := range g.NodesOnFloor(1) {
		assert.Equal(t, 1, seen[n.ID], "node %s must land in exactly one tile", n.ID)
	}
}

func TestGenerateFloor_EdgeSpansMultipleTiles(t *testing.T) {
	g := gridTerminal(t, "SEA-A", 100, 100)
	generated, err := GenerateFloor(g, 1, 20, 0)
	require.NoError(t, err)

	// The sw-se corridor runs along y=0 across all 5 bottom tiles.
	count := 0
	for _, tile := range generated {
		for _, e := range tile.Edges {
			if e.From == "sw" && e.To == "se" {
				count++
			}
		}
	}
	assert.Equal(t, 5, count)
}

func TestGenerateFloor_TileLimitExceeded(t *testing.T) {
	g := gridTerminal(t, "SEA-A", 100, 100)
	_, err := GenerateFloor(g, 1, 20, 10)
	assert.ErrorIs(t, err, ErrTileLimitExceeded)
}

func TestGenerateFloor_MissingFloor(t *testing.T) {
	g := gridTerminal(t, "SEA-A", 100, 100)
	_, err := GenerateFloor(g, 9, 20, 0)
	assert.ErrorIs(t, err, spatial.ErrMapDataMissing)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, StoreOptions{})
}

func TestStore_GenerateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := gridTerminal(t, "SEA-A", 100, 100)

	n, err := s.GenerateTerminal(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	tile, err := s.Get(ctx, "SEA-A", 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "SEA-A", tile.Terminal)
	assert.Equal(t, int64(1), tile.GraphVersion)

	// Second read hits the in-process cache, not disk.
	before := s.Stats().StoreReads
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, before, s.Stats().StoreReads)
	assert.Greater(t, s.Stats().CacheHits, int64(0))
}

type countingCacheMetrics struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (m *countingCacheMetrics) TileCacheHit(context.Context) {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *countingCacheMetrics) TileCacheMiss(context.Context) {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func TestStore_CacheMetricsSignals(t *testing.T) {
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cm := &countingCacheMetrics{}
	s := NewStore(db, StoreOptions{Metrics: cm})
	ctx := context.Background()

	_, err = s.GenerateTerminal(ctx, gridTerminal(t, "SEA-A", 40, 40))
	require.NoError(t, err)

	// First read misses, second is served from the in-process cache.
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	require.NoError(t, err)
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	require.NoError(t, err)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	assert.Equal(t, 1, cm.misses)
	assert.Equal(t, 1, cm.hits)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "SEA-A", 1, 99, 99)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestStore_TilesForArea(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := gridTerminal(t, "SEA-A", 100, 100)
	_, err := s.GenerateTerminal(ctx, g)
	require.NoError(t, err)

	rect, ok := g.FloorRect(1)
	require.True(t, ok)
	grid := NewGrid(rect, s.TileSize())

	// A 30x30 area straddling four cells.
	got, err := s.TilesForArea(ctx, "SEA-A", 1, spatial.Rect{MinX: 15, MinY: 15, MaxX: 45, MaxY: 45}, grid)
	require.NoError(t, err)
	assert.Len(t, got, 9) // cells (0..2, 0..2)

	// Area extending past the generated extent skips missing tiles.
	got, err = s.TilesForArea(ctx, "SEA-A", 1, spatial.Rect{MinX: 90, MinY: 90, MaxX: 300, MaxY: 300}, grid)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_ClearFloorTiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := gridTerminal(t, "SEA-A", 40, 40)
	_, err := s.GenerateTerminal(ctx, g)
	require.NoError(t, err)

	// Warm the cache, then clear.
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.ClearFloorTiles(ctx, "SEA-A", 1))

	assert.Zero(t, s.Stats().CacheEntries, "clear must purge the in-process cache")
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	assert.ErrorIs(t, err, ErrTileNotFound)
}

func TestStore_RegenerationReplacesTiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GenerateTerminal(ctx, gridTerminal(t, "SEA-A", 100, 100))
	require.NoError(t, err)

	// Shrink the floor; regeneration must drop the now out-of-range tiles.
	_, err = s.GenerateTerminal(ctx, gridTerminal(t, "SEA-A", 40, 40))
	require.NoError(t, err)

	_, err = s.Get(ctx, "SEA-A", 1, 4, 4)
	assert.ErrorIs(t, err, ErrTileNotFound)
	_, err = s.Get(ctx, "SEA-A", 1, 0, 0)
	assert.NoError(t, err)
}

func TestGrid_CellMath(t *testing.T) {
	grid := NewGrid(spatial.Rect{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}, 20)

	tx, ty := grid.CellFor(0, 0)
	assert.Equal(t, 0, tx)
	assert.Equal(t, 0, ty)

	tx, ty = grid.CellFor(19.999, 39.999)
	assert.Equal(t, 0, tx)
	assert.Equal(t, 1, ty)

	bounds := grid.CellBounds(2, 3)
	assert.Equal(t, spatial.Rect{MinX: 40, MinY: 60, MaxX: 60, MaxY: 80}, bounds)

	// Rect ending exactly on a cell border stays within that cell range.
	minTX, minTY, maxTX, maxTY := grid.CellsForRect(spatial.Rect{MinX: 0, MinY: 0, MaxX: 40, MaxY: 20})
	assert.Equal(t, 0, minTX)
	assert.Equal(t, 0, minTY)
	assert.Equal(t, 1, maxTX)
	assert.Equal(t, 0, maxTY)
}
