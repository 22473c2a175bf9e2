// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

func node(id string, x, y float64, floor int, t spatial.NodeType) spatial.Node {
	return spatial.Node{ID: id, X: x, Y: y, Floor: floor, Type: t}
}

func corridor(from, to string, dist float64) spatial.Edge {
	return spatial.Edge{From: from, To: to, Type: spatial.EdgeCorridor, DistanceMeters: dist, IsAccessible: true}
}

func transition(from, to string, t spatial.EdgeType, dist float64, accessible bool) spatial.Edge {
	return spatial.Edge{From: from, To: to, Type: t, DistanceMeters: dist, FloorChange: true, IsAccessible: accessible}
}

// twoFloorTerminal builds the canonical two-floor fixture:
//
//	floor 1:  A --- B --- C(elevator)      D(staircase)
//	                 \______/____ B-D ____/
//	floor 2:            C2 --- E           D2 --- E
//
// Both the elevator and the staircase reach E on floor 2; the staircase leg
// is shorter, so unconstrained routing prefers it while wheelchair routing
// must divert through the elevator.
func twoFloorTerminal(t *testing.T) *spatial.RoutingGraph {
	t.Helper()
	g, err := spatial.NewRoutingGraph("SEA-A", 1,
		[]spatial.Node{
			node("A", 0, 0, 1, spatial.NodeCorridor),
			node("B", 10, 0, 1, spatial.NodeCorridor),
			node("C", 20, 0, 1, spatial.NodeElevator),
			node("D", 10, 5, 1, spatial.NodeStaircase),
			node("C2", 20, 0, 2, spatial.NodeElevator),
			node("D2", 10, 5, 2, spatial.NodeStaircase),
			node("E", 15, 3, 2, spatial.NodePOI),
		},
		[]spatial.Edge{
			corridor("A", "B", 10),
			corridor("B", "C", 10),
			corridor("B", "D", 5),
			transition("C", "C2", spatial.EdgeElevator, 4, true),
			{From: "D", To: "D2", Type: spatial.EdgeStaircase, DistanceMeters: 6, FloorChange: true},
			corridor("C2", "E", 6),
			corridor("D2", "E", 5.5),
		},
		[]spatial.FloorBounds{
			{Floor: 1, MinZ: 0, MaxZ: 4},
			{Floor: 2, MinZ: 4, MaxZ: 8},
		})
	require.NoError(t, err)
	return g
}

func nodeIDs(r *Route) []string {
	out := make([]string, 0, len(r.Waypoints))
	for _, wp := range r.Waypoints {
		out = append(out, wp.NodeID)
	}
	return out
}

func TestFindPath_UnconstrainedTakesStaircase(t *testing.T) {
	g := twoFloorTerminal(t)

	route, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
	require.NoError(t, err)

	// Staircase leg: 10 + 5 + 6 + 5.5 = 26.5m and cost 26.5 + 2 + 5 = 33.5.
	// Elevator leg: 10 + 10 + 4 + 6 = 30m and cost 30 + 10 + 5 = 45.
	assert.Equal(t, []string{"A", "B", "D", "D2", "E"}, nodeIDs(route))
	assert.InDelta(t, 26.5, route.TotalDistance, 1e-9)
	assert.InDelta(t, 33.5, route.TotalCost, 1e-9)
	assert.Greater(t, route.EstimatedTime.Seconds(), 0.0)
}

func TestFindPath_WheelchairDivertsThroughElevator(t *testing.T) {
	g := twoFloorTerminal(t)

	route, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{
		AccessType: spatial.AccessWheelchair,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C", "C2", "E"}, nodeIDs(route))
	for _, wp := range route.Waypoints[1:] {
		assert.NotEqual(t, spatial.EdgeStaircase, wp.EdgeFromPrev.Type)
		assert.NotEqual(t, spatial.EdgeEscalator, wp.EdgeFromPrev.Type)
	}
}

func TestFindPath_RequireElevatorsFlag(t *testing.T) {
	g := twoFloorTerminal(t)

	route, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{
		RequireElevators: true,
	})
	require.NoError(t, err)

	for _, wp := range route.Waypoints[1:] {
		if wp.EdgeFromPrev.FloorChange {
			assert.Equal(t, spatial.EdgeElevator, wp.EdgeFromPrev.Type)
		}
	}
}

func TestFindPath_NoAdmissibleRoute(t *testing.T) {
	// Staircase is the only way up; wheelchair routing must fail rather
	// than fall back to it.
	g, err := spatial.NewRoutingGraph("SEA-B", 1,
		[]spatial.Node{
			node("A", 0, 0, 1, spatial.NodeCorridor),
			node("S", 5, 0, 1, spatial.NodeStaircase),
			node("S2", 5, 0, 2, spatial.NodeStaircase),
			node("E", 10, 0, 2, spatial.NodePOI),
		},
		[]spatial.Edge{
			corridor("A", "S", 5),
			{From: "S", To: "S2", Type: spatial.EdgeStaircase, DistanceMeters: 6, FloorChange: true},
			corridor("S2", "E", 5),
		},
		[]spatial.FloorBounds{
			{Floor: 1, MinZ: 0, MaxZ: 4},
			{Floor: 2, MinZ: 4, MaxZ: 8},
		})
	require.NoError(t, err)

	_, err = FindPath(g, "A", "E", spatial.AccessibilityConstraints{
		AccessType: spatial.AccessWheelchair,
	})
	assert.ErrorIs(t, err, ErrRouteNotFound)

	// Unconstrained routing still succeeds on the same graph.
	_, err = FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
	assert.NoError(t, err)
}

func TestFindPath_UnknownNodes(t *testing.T) {
	g := twoFloorTerminal(t)

	_, err := FindPath(g, "nope", "E", spatial.AccessibilityConstraints{})
	assert.ErrorIs(t, err, ErrRouteNotFound)

	_, err = FindPath(g, "A", "nope", spatial.AccessibilityConstraints{})
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestFindPath_Deterministic(t *testing.T) {
	// Diamond with two geometrically identical branches. Whichever branch
	// wins must win on every run.
	g, err := spatial.NewRoutingGraph("SEA-C", 1,
		[]spatial.Node{
			node("A", 0, 0, 1, spatial.NodeCorridor),
			node("L", 5, 5, 1, spatial.NodeCorridor),
			node("R", 5, -5, 1, spatial.NodeCorridor),
			node("E", 10, 0, 1, spatial.NodePOI),
		},
		[]spatial.Edge{
			corridor("A", "L", 7.071),
			corridor("A", "R", 7.071),
			corridor("L", "E", 7.071),
			corridor("R", "E", 7.071),
		},
		[]spatial.FloorBounds{{Floor: 1, MinZ: 0, MaxZ: 4}})
	require.NoError(t, err)

	first, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		again, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
		require.NoError(t, err)
		assert.Equal(t, nodeIDs(first), nodeIDs(again))
	}
	// Lower node ID wins the tie.
	assert.Equal(t, []string{"A", "L", "E"}, nodeIDs(first))
}

// exhaustiveBest enumerates every simple path and returns the cheapest cost,
// as an oracle for the A* result.
func exhaustiveBest(g *spatial.RoutingGraph, from, to string, c spatial.AccessibilityConstraints, visited map[string]bool, cost float64, best *float64) {
	if from == to {
		if cost < *best {
			*best = cost
		}
		return
	}
	visited[from] = true
	for _, hop := range g.Neighbors(from) {
		if visited[hop.To] || !EdgeAdmissible(hop.Edge, c) {
			continue
		}
		exhaustiveBest(g, hop.To, to, c, visited, cost+edgeCost(hop.Edge, c), best)
	}
	visited[from] = false
}

func TestFindPath_MatchesExhaustiveSearch(t *testing.T) {
	g := twoFloorTerminal(t)

	for _, constraints := range []spatial.AccessibilityConstraints{
		{},
		{AccessType: spatial.AccessWheelchair},
		{AccessType: spatial.AccessStroller},
		{AvoidStaircases: true},
	} {
		route, err := FindPath(g, "A", "E", constraints)
		require.NoError(t, err, "constraints %s", constraints.Key())

		best := 1e18
		exhaustiveBest(g, "A", "E", constraints, map[string]bool{}, 0, &best)
		assert.InDelta(t, best, route.TotalCost, 1e-9,
			"A* must match exhaustive optimum under %s", constraints.Key())
	}
}

func TestFindAlternatives(t *testing.T) {
	g := twoFloorTerminal(t)

	primary, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
	require.NoError(t, err)

	alts := FindAlternatives(g, primary, spatial.AccessibilityConstraints{}, 3)
	require.NotEmpty(t, alts)
	for _, alt := range alts {
		assert.Equal(t, "A", alt.Waypoints[0].NodeID)
		assert.Equal(t, "E", alt.Waypoints[len(alt.Waypoints)-1].NodeID)
		assert.NotEqual(t, nodeIDs(primary), nodeIDs(alt))
		assert.GreaterOrEqual(t, alt.TotalCost, primary.TotalCost)
	}
}

func TestValidatePath(t *testing.T) {
	g := twoFloorTerminal(t)

	assert.NoError(t, ValidatePath(g, []string{"A", "B", "D", "D2", "E"}, spatial.AccessibilityConstraints{}))

	// Wheelchair constraints reject the staircase hop.
	err := ValidatePath(g, []string{"A", "B", "D", "D2", "E"}, spatial.AccessibilityConstraints{
		AccessType: spatial.AccessWheelchair,
	})
	assert.ErrorIs(t, err, ErrInvalidPath)

	// Disconnected hop.
	assert.ErrorIs(t, ValidatePath(g, []string{"A", "C"}, spatial.AccessibilityConstraints{}), ErrInvalidPath)

	// Unknown node.
	assert.ErrorIs(t, ValidatePath(g, []string{"A", "zz"}, spatial.AccessibilityConstraints{}), ErrInvalidPath)

	// Empty path.
	assert.ErrorIs(t, ValidatePath(g, nil, spatial.AccessibilityConstraints{}), ErrInvalidPath)
}

func TestSegmentDistances(t *testing.T) {
	g := twoFloorTerminal(t)

	route, err := FindPath(g, "A", "E", spatial.AccessibilityConstraints{})
	require.NoError(t, err)

	segs := route.SegmentDistances()
	require.Len(t, segs, len(route.Waypoints)-1)

	var sum float64
	for _, d := range segs {
		sum += d
	}
	assert.InDelta(t, route.TotalDistance, sum, 1e-9)
}
