// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tiles partitions each floor's walkable topology into fixed-size
// spatial tiles so AR clients can stream just the geometry around the user
// instead of whole floors.
//
// Tiles are derived from the routing graph and regenerated whenever the
// graph version changes. A tile holds the nodes inside its cell plus every
// edge whose segment crosses the cell, so rendering a tile never needs its
// neighbors for edge continuity.
package tiles

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// DefaultTileSize is the cell edge length in meters.
const DefaultTileSize = 20.0

// DefaultMaxTilesPerFloor bounds generation for one floor. A floor plan
// that exceeds it is misconfigured (wrong units, runaway bounds) and
// generation fails outright rather than filling the store with junk.
const DefaultMaxTilesPerFloor = 10000

// ErrTileLimitExceeded means a floor would generate more tiles than the
// configured ceiling. Configuration-fatal: the floor plan needs fixing.
var ErrTileLimitExceeded = errors.New("tile limit exceeded for floor")

// ErrTileNotFound means the requested tile has not been generated.
var ErrTileNotFound = errors.New("tile not found")

// TileEdge is an edge as rendered inside a tile: the graph edge plus the
// resolved endpoint coordinates, so clients draw without node lookups.
type TileEdge struct {
	From       string           `json:"from"`
	To         string           `json:"to"`
	Type       spatial.EdgeType `json:"type"`
	FromX      float64          `json:"from_x"`
	FromY      float64          `json:"from_y"`
	ToX        float64          `json:"to_x"`
	ToY        float64          `json:"to_y"`
	Accessible bool             `json:"accessible"`
}

// Tile is one grid cell of a floor's topology.
type Tile struct {
	Terminal     string         `json:"terminal"`
	Floor        int            `json:"floor"`
	X            int            `json:"x"`
	Y            int            `json:"y"`
	Bounds       spatial.Rect   `json:"bounds"`
	Nodes        []spatial.Node `json:"nodes"`
	Edges        []TileEdge     `json:"edges"`
	GraphVersion int64          `json:"graph_version"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Key returns the storage key for this tile.
func (t *Tile) Key() string {
	return TileKey(t.Terminal, t.Floor, t.X, t.Y)
}

// TileKey builds the storage key for a tile coordinate.
func TileKey(terminal string, floor, x, y int) string {
	return fmt.Sprintf("tile/%s/%d/%d/%d", terminal, floor, x, y)
}

// FloorPrefix is the key prefix shared by every tile of one floor.
func FloorPrefix(terminal string, floor int) string {
	return fmt.Sprintf("tile/%s/%d/", terminal, floor)
}

// Grid maps between floor coordinates and tile indices. The origin anchors
// cell (0,0) at the floor's minimum corner.
type Grid struct {
	OriginX  float64
	OriginY  float64
	TileSize float64
}

// NewGrid builds a grid over the given floor rectangle.
func NewGrid(floorRect spatial.Rect, tileSize float64) Grid {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return Grid{OriginX: floorRect.MinX, OriginY: floorRect.MinY, TileSize: tileSize}
}

// CellFor returns the tile indices containing a point.
func (g Grid) CellFor(x, y float64) (int, int) {
	return int(math.Floor((x - g.OriginX) / g.TileSize)),
		int(math.Floor((y - g.OriginY) / g.TileSize))
}

// CellBounds returns the rectangle covered by a tile coordinate.
func (g Grid) CellBounds(tx, ty int) spatial.Rect {
	minX := g.OriginX + float64(tx)*g.TileSize
	minY := g.OriginY + float64(ty)*g.TileSize
	return spatial.Rect{
		MinX: minX,
		MinY: minY,
		MaxX: minX + g.TileSize,
		MaxY: minY + g.TileSize,
	}
}

// CellsForRect returns the inclusive tile index range overlapping a
// rectangle.
func (g Grid) CellsForRect(r spatial.Rect) (minTX, minTY, maxTX, maxTY int) {
	minTX, minTY = g.CellFor(r.MinX, r.MinY)
	// Upper bounds are exclusive; a rect ending exactly on a cell border
	// does not reach into the next cell.
	maxTX = int(math.Ceil((r.MaxX-g.OriginX)/g.TileSize)) - 1
	maxTY = int(math.Ceil((r.MaxY-g.OriginY)/g.TileSize)) - 1
	if maxTX < minTX {
		maxTX = minTX
	}
	if maxTY < minTY {
		maxTY = minTY
	}
	return minTX, minTY, maxTX, maxTY
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GenerateFloor builds every tile for one floor of the graph.
//
// Node membership uses half-open cell bounds so boundary nodes land in
// exactly one tile. Edge membership uses Cohen-Sutherland segment clipping
// against the cell rect; an edge may appear in several tiles. Cross-floor
// edges are included on both endpoint floors so transitions render on
// either side.
func GenerateFloor(g *spatial.RoutingGraph, floor int, tileSize float64, maxTilesPerFloor int) ([]*Tile, error) {
	if maxTilesPerFloor <= 0 {
		maxTilesPerFloor = DefaultMaxTilesPerFloor
	}
	rect, ok := g.FloorRect(floor)
	if !ok {
		return nil, fmt.Errorf("%w: floor %d has no nodes", spatial.ErrMapDataMissing, floor)
	}

	grid := NewGrid(rect, tileSize)
	width := int(math.Ceil((rect.MaxX - rect.MinX) / grid.TileSize))
	height := int(math.Ceil((rect.MaxY - rect.MinY) / grid.TileSize))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width*height > maxTilesPerFloor {
		return nil, fmt.Errorf("%w: floor %d needs %d tiles, limit %d",
			ErrTileLimitExceeded, floor, width*height, maxTilesPerFloor)
	}

	now := time.Now()
	out := make([]*Tile, 0, width*height)
	for ty := 0; ty < height; ty++ {
		for tx := 0; tx < width; tx++ {
			bounds := grid.CellBounds(tx, ty)
			tile := &Tile{
				Terminal:     g.Terminal,
				Floor:        floor,
				X:            tx,
				Y:            ty,
				Bounds:       bounds,
				GraphVersion: g.Version,
				GeneratedAt:  now,
			}

			for _, n := range g.NodesOnFloor(floor) {
				nx, ny := grid.CellFor(n.X, n.Y)
				// Clamp so nodes on the floor's max edge land in the last
				// cell instead of falling outside the half-open grid.
				nx = clamp(nx, 0, width-1)
				ny = clamp(ny, 0, height-1)
				if nx == tx && ny == ty {
					tile.Nodes = append(tile.Nodes, *n)
				}
			}
			for _, e := range g.Edges() {
				from, _ := g.Node(e.From)
				to, _ := g.Node(e.To)
				if from.Floor != floor && to.Floor != floor {
					continue
				}
				if !bounds.SegmentIntersects(from.X, from.Y, to.X, to.Y) {
					continue
				}
				tile.Edges = append(tile.Edges, TileEdge{
					From:       e.From,
					To:         e.To,
					Type:       e.Type,
					FromX:      from.X,
					FromY:      from.Y,
					ToX:        to.X,
					ToY:        to.Y,
					Accessible: e.IsAccessible,
				})
			}
			out = append(out, tile)
		}
	}
	return out, nil
}
