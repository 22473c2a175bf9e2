// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// Slope ceilings per accessibility profile, degrees.
const (
	wheelchairMaxSlope = 5.0
	strollerMaxSlope   = 8.0
)

// EdgeAdmissible reports whether an edge may be traversed under the given
// constraints.
//
// Profile rules:
//
//   - wheelchair: no staircases or escalators, edge must be flagged
//     accessible, slope at most 5 degrees.
//   - stroller: no escalators, no cross-floor staircases, slope at most
//     8 degrees.
//
// Manual flags (AvoidStaircases, RequireElevators, MaxSlopeDegrees) tighten
// the profile further; they never relax it.
func EdgeAdmissible(e *spatial.Edge, c spatial.AccessibilityConstraints) bool {
	switch c.AccessType {
	case spatial.AccessWheelchair:
		if e.Type == spatial.EdgeStaircase || e.Type == spatial.EdgeEscalator {
			return false
		}
		if !e.IsAccessible {
			return false
		}
		if e.MaxSlopeDegrees != nil && *e.MaxSlopeDegrees > wheelchairMaxSlope {
			return false
		}
	case spatial.AccessStroller:
		if e.Type == spatial.EdgeEscalator {
			return false
		}
		if e.Type == spatial.EdgeStaircase && e.FloorChange {
			return false
		}
		if e.MaxSlopeDegrees != nil && *e.MaxSlopeDegrees > strollerMaxSlope {
			return false
		}
	}

	if c.AvoidStaircases && e.Type == spatial.EdgeStaircase {
		return false
	}
	if c.RequireElevators && e.FloorChange && e.Type != spatial.EdgeElevator {
		return false
	}
	if c.MaxSlopeDegrees != nil && e.MaxSlopeDegrees != nil && *e.MaxSlopeDegrees > *c.MaxSlopeDegrees {
		return false
	}
	return true
}
