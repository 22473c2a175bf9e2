// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"container/heap"
	"fmt"
	"math"
	"time"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// FindPath runs constraint-filtered A* from start to end.
//
// Edge weight is distance + typePenalty + floorChangePenalty. The heuristic
// is 2D Euclidean distance plus |floorDiff| * floorChangePenalty. Note the
// heuristic does not account for the elevator penalty, so it is not provably
// admissible in adversarial graphs; that matches the original cost model
// deliberately (see DESIGN.md) and optimality is still verified on the
// realistic test fixtures.
//
// Ties on equal f-score break deterministically by node ID so identical
// requests always produce identical routes.
func FindPath(g *spatial.RoutingGraph, startID, endID string, constraints spatial.AccessibilityConstraints) (*Route, error) {
	return findPath(g, startID, endID, constraints, nil)
}

// excludedEdge identifies one directed hop to skip, used by the
// alternative-route search.
type excludedEdge struct {
	from, to string
}

func findPath(g *spatial.RoutingGraph, startID, endID string, constraints spatial.AccessibilityConstraints, exclude *excludedEdge) (*Route, error) {
	start, ok := g.Node(startID)
	if !ok {
		return nil, fmt.Errorf("%w: start node %q", ErrRouteNotFound, startID)
	}
	end, ok := g.Node(endID)
	if !ok {
		return nil, fmt.Errorf("%w: end node %q", ErrRouteNotFound, endID)
	}

	h := func(n *spatial.Node) float64 {
		floorDiff := math.Abs(float64(n.Floor - end.Floor))
		return spatial.Distance2D(n.X, n.Y, end.X, end.Y) + floorDiff*floorChangePenalty
	}

	gScore := map[string]float64{startID: 0}
	cameFrom := map[string]spatial.Adjacency{}
	closed := map[string]bool{}

	open := &nodeQueue{}
	heap.Init(open)
	heap.Push(open, &queueItem{nodeID: startID, fScore: h(start)})

	for open.Len() > 0 {
		current := heap.Pop(open).(*queueItem)
		if closed[current.nodeID] {
			continue
		}
		if current.nodeID == endID {
			return buildRoute(g, startID, endID, cameFrom, gScore[endID])
		}
		closed[current.nodeID] = true

		for _, hop := range g.Neighbors(current.nodeID) {
			if closed[hop.To] {
				continue
			}
			if !EdgeAdmissible(hop.Edge, constraints) {
				continue
			}
			if exclude != nil && current.nodeID == exclude.from && hop.To == exclude.to {
				continue
			}

			tentative := gScore[current.nodeID] + edgeCost(hop.Edge, constraints)
			if prev, seen := gScore[hop.To]; seen && tentative >= prev {
				continue
			}
			gScore[hop.To] = tentative
			cameFrom[hop.To] = spatial.Adjacency{Edge: hop.Edge, To: current.nodeID}

			next, _ := g.Node(hop.To)
			heap.Push(open, &queueItem{nodeID: hop.To, fScore: tentative + h(next)})
		}
	}

	return nil, fmt.Errorf("%w: %s -> %s", ErrRouteNotFound, startID, endID)
}

func buildRoute(g *spatial.RoutingGraph, startID, endID string, cameFrom map[string]spatial.Adjacency, cost float64) (*Route, error) {
	var reversed []Waypoint
	var edges []*spatial.Edge

	id := endID
	for id != startID {
		n, _ := g.Node(id)
		prev, ok := cameFrom[id]
		if !ok {
			return nil, fmt.Errorf("%w: broken back-pointer at %s", ErrRouteNotFound, id)
		}
		reversed = append(reversed, waypointFor(n))
		edges = append(edges, prev.Edge)
		id = prev.To
	}
	startNode, _ := g.Node(startID)
	reversed = append(reversed, waypointFor(startNode))

	route := &Route{
		Waypoints: make([]Waypoint, 0, len(reversed)),
		TotalCost: cost,
	}
	for i := len(reversed) - 1; i >= 0; i-- {
		route.Waypoints = append(route.Waypoints, reversed[i])
	}
	// Edges were collected end-to-start; attach each to the waypoint it
	// leads into.
	for i := 1; i < len(route.Waypoints); i++ {
		e := edges[len(edges)-i]
		route.Waypoints[i].EdgeFromPrev = e
		route.TotalDistance += e.DistanceMeters
		route.EstimatedTime += edgeTime(e)
	}
	return route, nil
}

func waypointFor(n *spatial.Node) Waypoint {
	return Waypoint{
		NodeID: n.ID,
		X:      n.X,
		Y:      n.Y,
		Floor:  n.Floor,
		Type:   n.Type,
		Name:   n.Name,
		IsPOI:  n.IsPOI,
	}
}

// FindAlternatives recomputes up to maxAlternatives variants of the primary
// route, removing one primary-path edge at a time, keeping only successful
// results. Gives the caller fallbacks against localized congestion without
// a full re-plan.
func FindAlternatives(g *spatial.RoutingGraph, primary *Route, constraints spatial.AccessibilityConstraints, maxAlternatives int) []*Route {
	if primary == nil || len(primary.Waypoints) < 2 || maxAlternatives <= 0 {
		return nil
	}

	startID := primary.Waypoints[0].NodeID
	endID := primary.Waypoints[len(primary.Waypoints)-1].NodeID

	var alternatives []*Route
	for i := 1; i < len(primary.Waypoints) && len(alternatives) < maxAlternatives; i++ {
		excl := excludedEdge{
			from: primary.Waypoints[i-1].NodeID,
			to:   primary.Waypoints[i].NodeID,
		}
		alt, err := findPath(g, startID, endID, constraints, &excl)
		if err != nil {
			continue
		}
		if sameWaypoints(alt, primary) {
			continue
		}
		alternatives = append(alternatives, alt)
	}
	return alternatives
}

func sameWaypoints(a, b *Route) bool {
	if len(a.Waypoints) != len(b.Waypoints) {
		return false
	}
	for i := range a.Waypoints {
		if a.Waypoints[i].NodeID != b.Waypoints[i].NodeID {
			return false
		}
	}
	return true
}

// EstimateTime returns the walking-time estimate for an arbitrary distance
// at baseline speed. Used for remaining-time projections mid-route.
func EstimateTime(distanceMeters float64) time.Duration {
	return time.Duration(distanceMeters / walkingSpeed * float64(time.Second))
}

// queueItem is an open-set entry. Ordering is by f-score with node ID as
// the deterministic tie-breaker.
type queueItem struct {
	nodeID string
	fScore float64
}

type nodeQueue []*queueItem

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].fScore != q[j].fScore {
		return q[i].fScore < q[j].fScore
	}
	return q[i].nodeID < q[j].nodeID
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*queueItem)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
