// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package spatial

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrMapDataMissing is returned when no routing graph is loaded for a
// terminal (or a floor of it). Fatal to the calling request; retryable
// after a map sync.
var ErrMapDataMissing = errors.New("map data missing for terminal")

// Adjacency is one outgoing hop in the adjacency list.
type Adjacency struct {
	Edge *Edge
	To   string
}

// RoutingGraph is the walkable topology of one terminal.
//
// # Invariants
//
//   - Every edge references two existing nodes.
//   - Every floor-crossing edge has FloorChange set and a transition type
//     (elevator, staircase, escalator).
//
// Both are enforced by Validate, which NewRoutingGraph runs before the
// graph becomes visible to readers. A RoutingGraph is immutable after
// construction and safe for unsynchronized concurrent reads.
type RoutingGraph struct {
	Terminal string
	Version  int64

	nodes  map[string]*Node
	edges  []*Edge
	adj    map[string][]Adjacency
	floors []FloorBounds
}

// NewRoutingGraph builds and validates a routing graph for one terminal.
//
// Adjacency is expanded at build time: bidirectional edges contribute a hop
// in each direction, escalators and explicitly directional edges only one.
// Adjacency lists are sorted by destination node ID so traversal order is
// deterministic.
func NewRoutingGraph(terminal string, version int64, nodes []Node, edges []Edge, floors []FloorBounds) (*RoutingGraph, error) {
	g := &RoutingGraph{
		Terminal: terminal,
		Version:  version,
		nodes:    make(map[string]*Node, len(nodes)),
		edges:    make([]*Edge, 0, len(edges)),
		adj:      make(map[string][]Adjacency, len(nodes)),
		floors:   append([]FloorBounds(nil), floors...),
	}

	for i := range nodes {
		n := nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.nodes[n.ID] = &n
	}

	for i := range edges {
		e := edges[i]
		g.edges = append(g.edges, &e)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	for _, e := range g.edges {
		g.adj[e.From] = append(g.adj[e.From], Adjacency{Edge: e, To: e.To})
		if e.Bidirectional() {
			g.adj[e.To] = append(g.adj[e.To], Adjacency{Edge: e, To: e.From})
		}
	}
	for id := range g.adj {
		hops := g.adj[id]
		sort.Slice(hops, func(i, j int) bool { return hops[i].To < hops[j].To })
		g.adj[id] = hops
	}

	sort.Slice(g.floors, func(i, j int) bool { return g.floors[i].Floor < g.floors[j].Floor })

	return g, nil
}

// Validate checks the structural invariants of the graph.
func (g *RoutingGraph) Validate() error {
	for _, e := range g.edges {
		from, ok := g.nodes[e.From]
		if !ok {
			return fmt.Errorf("edge %s->%s: unknown node %q", e.From, e.To, e.From)
		}
		to, ok := g.nodes[e.To]
		if !ok {
			return fmt.Errorf("edge %s->%s: unknown node %q", e.From, e.To, e.To)
		}
		if e.DistanceMeters <= 0 {
			return fmt.Errorf("edge %s->%s: non-positive distance %f", e.From, e.To, e.DistanceMeters)
		}
		crossesFloors := from.Floor != to.Floor
		if crossesFloors {
			if !e.FloorChange {
				return fmt.Errorf("edge %s->%s crosses floors %d->%d without floor_change", e.From, e.To, from.Floor, to.Floor)
			}
			if !e.Type.IsFloorTransition() {
				return fmt.Errorf("edge %s->%s: type %q cannot cross floors", e.From, e.To, e.Type)
			}
		} else if e.FloorChange {
			return fmt.Errorf("edge %s->%s: floor_change set on same-floor edge", e.From, e.To)
		}
	}
	return nil
}

// Node returns the node with the given ID, if present.
func (g *RoutingGraph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Neighbors returns the outgoing hops from a node in deterministic order.
// The returned slice must not be modified.
func (g *RoutingGraph) Neighbors(id string) []Adjacency {
	return g.adj[id]
}

// Nodes returns all nodes sorted by ID.
func (g *RoutingGraph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges in insertion order. The slice must not be modified.
func (g *RoutingGraph) Edges() []*Edge {
	return g.edges
}

// NodesOnFloor returns the nodes on one floor, sorted by ID.
func (g *RoutingGraph) NodesOnFloor(floor int) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Floor == floor {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Floors returns the vertical bounds of each floor, ascending by floor.
func (g *RoutingGraph) Floors() []FloorBounds {
	return g.floors
}

// FloorForZ resolves a floor number from a vertical coordinate by matching
// against the stored per-floor bounds. Returns false when z falls outside
// every floor's bounds.
func (g *RoutingGraph) FloorForZ(z float64) (int, bool) {
	for _, b := range g.floors {
		if b.Contains(z) {
			return b.Floor, true
		}
	}
	return 0, false
}

// FloorRect returns the bounding rectangle of a floor's nodes.
// Returns false when the floor has no nodes.
func (g *RoutingGraph) FloorRect(floor int) (Rect, bool) {
	found := false
	var r Rect
	for _, n := range g.nodes {
		if n.Floor != floor {
			continue
		}
		if !found {
			r = Rect{MinX: n.X, MinY: n.Y, MaxX: n.X, MaxY: n.Y}
			found = true
			continue
		}
		if n.X < r.MinX {
			r.MinX = n.X
		}
		if n.X > r.MaxX {
			r.MaxX = n.X
		}
		if n.Y < r.MinY {
			r.MinY = n.Y
		}
		if n.Y > r.MaxY {
			r.MaxY = n.Y
		}
	}
	return r, found
}

// GraphStore holds the current routing graph per terminal.
//
// Readers load the graph without locking; a floor-plan reload builds a new
// graph off to the side and swaps it in atomically, so in-flight route
// computations observe either the old or the new version, never a mix.
type GraphStore struct {
	mu        sync.Mutex // serializes writers only
	terminals sync.Map   // terminal -> *atomic.Pointer[RoutingGraph]
}

// NewGraphStore returns an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// Get returns the current graph for a terminal.
func (s *GraphStore) Get(terminal string) (*RoutingGraph, error) {
	v, ok := s.terminals.Load(terminal)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapDataMissing, terminal)
	}
	g := v.(*atomic.Pointer[RoutingGraph]).Load()
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrMapDataMissing, terminal)
	}
	return g, nil
}

// Swap atomically replaces the graph for a terminal.
func (s *GraphStore) Swap(g *RoutingGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, _ := s.terminals.LoadOrStore(g.Terminal, &atomic.Pointer[RoutingGraph]{})
	v.(*atomic.Pointer[RoutingGraph]).Store(g)
}

// Remove drops a terminal's graph. Subsequent Gets fail with ErrMapDataMissing.
func (s *GraphStore) Remove(terminal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals.Delete(terminal)
}

// Terminals returns the IDs of all loaded terminals, sorted.
func (s *GraphStore) Terminals() []string {
	var out []string
	s.terminals.Range(func(k, v any) bool {
		if v.(*atomic.Pointer[RoutingGraph]).Load() != nil {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}
