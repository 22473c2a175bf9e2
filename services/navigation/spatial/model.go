// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package spatial defines the walkable topology of a terminal: typed nodes
// and edges across floors, the per-terminal routing graph, and the geometry
// primitives the tile and routing layers build on.
//
// The routing graph is read-mostly. It is built once at terminal onboarding
// and atomically swapped on floor-plan updates; concurrent route computations
// never observe a partially rebuilt graph.
package spatial

import (
	"fmt"
	"time"
)

// NodeType classifies a graph node.
type NodeType string

const (
	NodeCorridor  NodeType = "corridor"
	NodeElevator  NodeType = "elevator"
	NodeStaircase NodeType = "staircase"
	NodeEscalator NodeType = "escalator"
	NodeRamp      NodeType = "ramp"
	NodePOI       NodeType = "poi"
)

// EdgeType classifies a graph edge. Edge types mirror node transition types;
// corridor and ramp edges stay on one floor, the transition types may cross.
type EdgeType string

const (
	EdgeCorridor  EdgeType = "corridor"
	EdgeElevator  EdgeType = "elevator"
	EdgeStaircase EdgeType = "staircase"
	EdgeEscalator EdgeType = "escalator"
	EdgeRamp      EdgeType = "ramp"
)

// IsFloorTransition reports whether this edge type is allowed to cross floors.
func (t EdgeType) IsFloorTransition() bool {
	switch t {
	case EdgeElevator, EdgeStaircase, EdgeEscalator:
		return true
	}
	return false
}

// Position is a fused position estimate inside a terminal.
//
// Floor is derived by matching Z against each floor's stored vertical bounds
// rather than fixed-height arithmetic, so uneven floor heights resolve
// correctly. Accuracy is the estimated error radius in meters and is always
// positive for a valid position.
type Position struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Floor     int       `json:"floor"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// DistanceTo returns the 2D Euclidean distance to another position, in meters.
func (p Position) DistanceTo(o Position) float64 {
	return Distance2D(p.X, p.Y, o.X, o.Y)
}

// Node is a vertex in the walkable topology.
type Node struct {
	ID    string   `json:"id" yaml:"id"`
	X     float64  `json:"x" yaml:"x"`
	Y     float64  `json:"y" yaml:"y"`
	Floor int      `json:"floor" yaml:"floor"`
	Type  NodeType `json:"type" yaml:"type"`
	IsPOI bool     `json:"is_poi" yaml:"is_poi"`
	Name  string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Edge connects two nodes. Escalator edges are directional; every other
// edge type is walkable in both directions unless Directional is set.
type Edge struct {
	From            string   `json:"from" yaml:"from"`
	To              string   `json:"to" yaml:"to"`
	Type            EdgeType `json:"type" yaml:"type"`
	DistanceMeters  float64  `json:"distance_meters" yaml:"distance_meters"`
	FloorChange     bool     `json:"floor_change" yaml:"floor_change"`
	IsAccessible    bool     `json:"is_accessible" yaml:"is_accessible"`
	MaxSlopeDegrees *float64 `json:"max_slope_degrees,omitempty" yaml:"max_slope_degrees,omitempty"`
	Directional     bool     `json:"directional,omitempty" yaml:"directional,omitempty"`
}

// Bidirectional reports whether the edge is walkable in both directions.
func (e Edge) Bidirectional() bool {
	if e.Type == EdgeEscalator {
		return false
	}
	return !e.Directional
}

// FloorBounds records the vertical extent of one floor, in meters.
type FloorBounds struct {
	Floor int     `json:"floor" yaml:"floor"`
	MinZ  float64 `json:"min_z" yaml:"min_z"`
	MaxZ  float64 `json:"max_z" yaml:"max_z"`
}

// Contains reports whether z falls inside this floor's vertical bounds.
// The upper bound is exclusive so adjacent floors never both match.
func (b FloorBounds) Contains(z float64) bool {
	return z >= b.MinZ && z < b.MaxZ
}

// AccessType selects the accessibility profile for a routing request.
type AccessType string

const (
	AccessDefault    AccessType = "default"
	AccessWheelchair AccessType = "wheelchair"
	AccessStroller   AccessType = "stroller"
)

// AccessibilityConstraints restrict which edges are admissible for routing.
//
// The profile in AccessType applies its built-in exclusions; the manual
// flags tighten further on top of the profile.
type AccessibilityConstraints struct {
	AccessType       AccessType `json:"access_type" yaml:"access_type"`
	AvoidStaircases  bool       `json:"avoid_staircases" yaml:"avoid_staircases"`
	RequireElevators bool       `json:"require_elevators" yaml:"require_elevators"`
	MaxSlopeDegrees  *float64   `json:"max_slope_degrees,omitempty" yaml:"max_slope_degrees,omitempty"`
	PreferRamps      bool       `json:"prefer_ramps" yaml:"prefer_ramps"`
}

// Key returns a stable cache key fragment for the constraint set.
func (c AccessibilityConstraints) Key() string {
	slope := "-"
	if c.MaxSlopeDegrees != nil {
		slope = fmt.Sprintf("%.1f", *c.MaxSlopeDegrees)
	}
	access := c.AccessType
	if access == "" {
		access = AccessDefault
	}
	return fmt.Sprintf("%s|as=%t|re=%t|ms=%s|pr=%t",
		access, c.AvoidStaircases, c.RequireElevators, slope, c.PreferRamps)
}
