// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"errors"
	"fmt"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// ErrInvalidPath is wrapped by every path validation failure.
var ErrInvalidPath = errors.New("invalid path")

// ValidatePath checks that a proposed node sequence is walkable on the
// graph and admissible under the constraints. Used to re-verify a cached or
// client-echoed route against the current graph version before resuming a
// session on it.
//
// Rules:
//
//   - every node must exist and consecutive nodes must be connected by an
//     admissible edge in traversal direction
//   - every floor crossing must happen over exactly one transition edge
//     (elevator, staircase, or escalator with FloorChange set)
func ValidatePath(g *spatial.RoutingGraph, nodeIDs []string, constraints spatial.AccessibilityConstraints) error {
	if len(nodeIDs) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	prev, ok := g.Node(nodeIDs[0])
	if !ok {
		return fmt.Errorf("%w: unknown node %q", ErrInvalidPath, nodeIDs[0])
	}

	for _, id := range nodeIDs[1:] {
		node, ok := g.Node(id)
		if !ok {
			return fmt.Errorf("%w: unknown node %q", ErrInvalidPath, id)
		}

		edge := findEdge(g, prev.ID, id)
		if edge == nil {
			return fmt.Errorf("%w: no edge %s -> %s", ErrInvalidPath, prev.ID, id)
		}
		if !EdgeAdmissible(edge, constraints) {
			return fmt.Errorf("%w: edge %s -> %s violates %s constraints",
				ErrInvalidPath, prev.ID, id, constraints.AccessType)
		}

		if node.Floor != prev.Floor {
			if !edge.FloorChange || !edge.Type.IsFloorTransition() {
				return fmt.Errorf("%w: floor crossing %s -> %s without a transition edge",
					ErrInvalidPath, prev.ID, id)
			}
		} else if edge.FloorChange {
			return fmt.Errorf("%w: transition edge %s -> %s stays on floor %d",
				ErrInvalidPath, prev.ID, id, node.Floor)
		}

		prev = node
	}
	return nil
}

// findEdge returns the adjacency edge from one node to another, or nil.
func findEdge(g *spatial.RoutingGraph, from, to string) *spatial.Edge {
	for _, hop := range g.Neighbors(from) {
		if hop.To == to {
			return hop.Edge
		}
	}
	return nil
}
