// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"strings"

	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// Distance buckets for instruction phrasing, meters.
const (
	farThreshold      = 20.0
	approachThreshold = 5.0

	// audioRange is how close the user must be to the next waypoint before
	// a voice prompt fires. Keeps audio guidance from chattering on long
	// corridor stretches.
	audioRange = 10.0

	// arrivalThreshold is the radius around a waypoint that counts as
	// reaching it.
	arrivalThreshold = 3.0
)

// Turn direction relative to current heading.
type Turn string

const (
	TurnForward Turn = "forward"
	TurnLeft    Turn = "left"
	TurnRight   Turn = "right"
	TurnAround  Turn = "around"
)

// Instruction is one guidance step toward the next waypoint.
type Instruction struct {
	Text           string  `json:"text"`
	Turn           Turn    `json:"turn"`
	DistanceMeters float64 `json:"distance_meters"`
	// Audio is set when the client should speak the instruction: voice
	// guidance enabled and the waypoint within audio range.
	Audio bool `json:"audio"`
}

// turnFor maps a relative bearing to a coarse turn direction. The forward
// cone is ±45 degrees; beyond ±135 means the target is behind.
func turnFor(relativeBearing float64) Turn {
	switch {
	case relativeBearing > 135 || relativeBearing < -135:
		return TurnAround
	case relativeBearing >= 45:
		return TurnRight
	case relativeBearing <= -45:
		return TurnLeft
	default:
		return TurnForward
	}
}

// transitionVerb phrases how the user traverses a transition waypoint.
func transitionVerb(t spatial.NodeType) string {
	switch t {
	case spatial.NodeElevator:
		return "take the elevator"
	case spatial.NodeStaircase:
		return "take the stairs"
	case spatial.NodeEscalator:
		return "take the escalator"
	case spatial.NodeRamp:
		return "follow the ramp"
	default:
		return ""
	}
}

// BuildInstruction phrases guidance toward the next waypoint from the
// user's position and heading.
//
// Distance buckets: beyond 20m the instruction is a plain continue; between
// 5 and 20m it names the upcoming turn; under 5m it announces arrival at
// the waypoint, including the transition verb for elevator/stair/escalator
// waypoints.
func BuildInstruction(pos spatial.Position, heading float64, next routing.Waypoint, voiceGuidance bool) Instruction {
	dist := spatial.Distance2D(pos.X, pos.Y, next.X, next.Y)
	target := spatial.Bearing(pos.X, pos.Y, next.X, next.Y)
	turn := turnFor(spatial.RelativeBearing(heading, target))

	name := next.Name
	if name == "" {
		name = "the next waypoint"
	}

	var text string
	switch {
	case dist > farThreshold:
		text = fmt.Sprintf("Continue straight for %.0f meters", dist)
		turn = TurnForward
	case dist >= approachThreshold:
		switch turn {
		case TurnForward:
			text = fmt.Sprintf("Continue forward %.0f meters to %s", dist, name)
		case TurnAround:
			text = fmt.Sprintf("Turn around and head %.0f meters to %s", dist, name)
		default:
			text = fmt.Sprintf("In %.0f meters, turn %s toward %s", dist, turn, name)
		}
	default:
		if verb := transitionVerb(next.Type); verb != "" {
			text = fmt.Sprintf("Approaching %s, %s", name, verb)
		} else {
			text = fmt.Sprintf("Approaching %s", name)
		}
	}

	return Instruction{
		Text:           text,
		Turn:           turn,
		DistanceMeters: dist,
		Audio:          voiceGuidance && dist <= audioRange,
	}
}

// FloorChangeInstruction phrases the transition the user just boarded,
// e.g. "Take the elevator up to floor 2".
func FloorChangeInstruction(reached routing.Waypoint, fromFloor int, voiceGuidance bool) Instruction {
	verb := transitionVerb(reached.Type)
	if verb == "" {
		verb = "continue"
	}
	direction := "up"
	if reached.Floor < fromFloor {
		direction = "down"
	}
	text := fmt.Sprintf("%s %s to floor %d",
		strings.ToUpper(verb[:1])+verb[1:], direction, reached.Floor)
	return Instruction{
		Text:  text,
		Turn:  TurnForward,
		Audio: voiceGuidance,
	}
}
