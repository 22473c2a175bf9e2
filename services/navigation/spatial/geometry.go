// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package spatial

import "math"

// Distance2D returns the Euclidean distance between two points, in meters.
func Distance2D(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// Bearing returns the heading from (x1,y1) to (x2,y2) in degrees,
// normalized to [0, 360). 0 points along +Y, 90 along +X.
func Bearing(x1, y1, x2, y2 float64) float64 {
	deg := math.Atan2(x2-x1, y2-y1) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// RelativeBearing returns the signed turn angle in (-180, 180] from the
// current heading to the bearing toward a target. Positive means turn right.
func RelativeBearing(heading, target float64) float64 {
	diff := math.Mod(target-heading, 360)
	if diff > 180 {
		diff -= 360
	} else if diff <= -180 {
		diff += 360
	}
	return diff
}

// Rect is an axis-aligned rectangle in floor coordinates.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// ContainsPoint reports whether the point lies inside the rectangle.
// Lower edges are inclusive, upper edges exclusive, so grid cells tile
// the plane without double-counting boundary nodes.
func (r Rect) ContainsPoint(x, y float64) bool {
	return x >= r.MinX && x < r.MaxX && y >= r.MinY && y < r.MaxY
}

// Intersects reports whether two rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Cohen-Sutherland outcodes.
const (
	csInside = 0
	csLeft   = 1
	csRight  = 2
	csBottom = 4
	csTop    = 8
)

func (r Rect) outcode(x, y float64) int {
	code := csInside
	if x < r.MinX {
		code |= csLeft
	} else if x > r.MaxX {
		code |= csRight
	}
	if y < r.MinY {
		code |= csBottom
	} else if y > r.MaxY {
		code |= csTop
	}
	return code
}

// SegmentIntersects reports whether the line segment (x1,y1)-(x2,y2)
// intersects the rectangle, using Cohen-Sutherland clipping.
func (r Rect) SegmentIntersects(x1, y1, x2, y2 float64) bool {
	c1 := r.outcode(x1, y1)
	c2 := r.outcode(x2, y2)

	for {
		if c1|c2 == 0 {
			// Both endpoints inside.
			return true
		}
		if c1&c2 != 0 {
			// Both endpoints share an outside half-plane.
			return false
		}

		// Clip the endpoint that is outside against the first boundary
		// it violates and retest.
		out := c1
		if out == 0 {
			out = c2
		}

		var x, y float64
		switch {
		case out&csTop != 0:
			x = x1 + (x2-x1)*(r.MaxY-y1)/(y2-y1)
			y = r.MaxY
		case out&csBottom != 0:
			x = x1 + (x2-x1)*(r.MinY-y1)/(y2-y1)
			y = r.MinY
		case out&csRight != 0:
			y = y1 + (y2-y1)*(r.MaxX-x1)/(x2-x1)
			x = r.MaxX
		case out&csLeft != 0:
			y = y1 + (y2-y1)*(r.MinX-x1)/(x2-x1)
			x = r.MinX
		}

		if out == c1 {
			x1, y1 = x, y
			c1 = r.outcode(x1, y1)
		} else {
			x2, y2 = x, y
			c2 = r.outcode(x2, y2)
		}
	}
}
