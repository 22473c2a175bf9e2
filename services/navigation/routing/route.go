// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing computes accessibility-constrained routes over a
// terminal's spatial graph using A* search.
package routing

import (
	"errors"
	"time"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// ErrRouteNotFound means no admissible path exists under the supplied
// constraints. Fatal to the request; the caller may relax constraints and
// retry.
var ErrRouteNotFound = errors.New("no admissible route found")

// Cost model constants. Type penalties are additive meters-equivalent costs
// per edge; the elevator penalty stands in for expected wait time.
const (
	penaltyStaircase = 2.0
	penaltyElevator  = 10.0
	penaltyEscalator = 1.0
	penaltyRamp      = 0.5

	// floorChangePenalty is added to every floor-crossing edge and to the
	// heuristic per remaining floor of separation.
	floorChangePenalty = 5.0

	// rampPreferenceDiscount is subtracted from ramp edges when the
	// constraints prefer ramps. Kept below penaltyRamp so costs stay
	// non-negative.
	rampPreferenceDiscount = 0.4

	// walkingSpeed is the baseline pedestrian speed, m/s.
	walkingSpeed = 1.4
)

// Waypoint is one step of a computed route.
type Waypoint struct {
	NodeID      string           `json:"node_id"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Floor       int              `json:"floor"`
	Type        spatial.NodeType `json:"type"`
	Name        string           `json:"name,omitempty"`
	IsPOI       bool             `json:"is_poi"`
	// EdgeFromPrev is the edge traversed to reach this waypoint;
	// nil for the first waypoint.
	EdgeFromPrev *spatial.Edge `json:"-"`
}

// Route is an ordered sequence of waypoints with aggregate estimates.
type Route struct {
	Waypoints     []Waypoint    `json:"waypoints"`
	TotalDistance float64       `json:"total_distance_meters"`
	EstimatedTime time.Duration `json:"estimated_time"`
	TotalCost     float64       `json:"-"` // A* cost, for tests and alternatives ranking
}

// SegmentDistances returns the per-segment edge lengths, one per waypoint
// after the first.
func (r *Route) SegmentDistances() []float64 {
	if len(r.Waypoints) < 2 {
		return nil
	}
	out := make([]float64, 0, len(r.Waypoints)-1)
	for _, wp := range r.Waypoints[1:] {
		out = append(out, wp.EdgeFromPrev.DistanceMeters)
	}
	return out
}

// edgeTypePenalty returns the fixed additive cost for an edge type.
func edgeTypePenalty(t spatial.EdgeType) float64 {
	switch t {
	case spatial.EdgeStaircase:
		return penaltyStaircase
	case spatial.EdgeElevator:
		return penaltyElevator
	case spatial.EdgeEscalator:
		return penaltyEscalator
	case spatial.EdgeRamp:
		return penaltyRamp
	default:
		return 0
	}
}

// edgeSpeed returns the effective traversal speed for an edge type, m/s.
// Transition edges are slower than level walking; elevators are dominated
// by wait and travel time.
func edgeSpeed(t spatial.EdgeType) float64 {
	switch t {
	case spatial.EdgeStaircase:
		return 0.6
	case spatial.EdgeElevator:
		return 0.5
	case spatial.EdgeEscalator:
		return 0.75
	case spatial.EdgeRamp:
		return 1.2
	default:
		return walkingSpeed
	}
}

// edgeCost is the A* weight of a single edge under the given constraints:
// distance + type penalty + floor-change penalty, with the ramp preference
// discount applied when requested.
func edgeCost(e *spatial.Edge, constraints spatial.AccessibilityConstraints) float64 {
	cost := e.DistanceMeters + edgeTypePenalty(e.Type)
	if e.FloorChange {
		cost += floorChangePenalty
	}
	if constraints.PreferRamps && e.Type == spatial.EdgeRamp {
		cost -= rampPreferenceDiscount
	}
	return cost
}

// edgeTime estimates the traversal time of one edge.
func edgeTime(e *spatial.Edge) time.Duration {
	return time.Duration(e.DistanceMeters / edgeSpeed(e.Type) * float64(time.Second))
}
