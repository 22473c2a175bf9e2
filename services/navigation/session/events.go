// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"time"

	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// EventType tags a navigation event.
type EventType string

const (
	EventUpdate          EventType = "update"
	EventNextWaypoint    EventType = "next_waypoint"
	EventFloorChange     EventType = "floor_change"
	EventBreadcrumb      EventType = "breadcrumb"
	EventPositioningLost EventType = "positioning_lost"
	EventCompleted       EventType = "completed"
	EventCancelled       EventType = "cancelled"
	EventError           EventType = "error"
)

// Event is one message on a session's update stream. Update carries the
// full guidance payload; the other types are lifecycle markers with only
// the relevant fields set.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Update    *NavigationUpdate `json:"update,omitempty"`
	Waypoint  *routing.Waypoint `json:"waypoint,omitempty"`
	// Instruction is set on floor-change events: how the user traverses
	// the transition.
	Instruction *Instruction `json:"instruction,omitempty"`
	FromFloor   int          `json:"from_floor,omitempty"`
	ToFloor     int          `json:"to_floor,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// NavigationUpdate is the per-tick guidance payload sent to clients.
type NavigationUpdate struct {
	Position          spatial.Position `json:"position"`
	Confidence        float64          `json:"confidence"`
	WaypointIndex     int              `json:"waypoint_index"`
	NextWaypoint      routing.Waypoint `json:"next_waypoint"`
	Instruction       Instruction      `json:"instruction"`
	RemainingDistance float64          `json:"remaining_distance_meters"`
	RemainingTime     time.Duration    `json:"remaining_time"`
	Status            Status           `json:"status"`
}

// ARCollaborator is the rendering layer's contract: the manager drives
// arrow, overlay, and breadcrumb state alongside the session, keyed by
// session ID. Errors are logged as warnings and never affect guidance.
//
// Implementations must not block: callbacks run on the session tick path.
type ARCollaborator interface {
	CreateArrow(sessionID string) error
	UpdateArrowTarget(sessionID string, target routing.Waypoint) error
	CreateNavigationOverlay(sessionID string, route *routing.Route) error
	UpdateNavigationOverlay(sessionID string, update NavigationUpdate) error
	AddBreadcrumb(sessionID string, pos spatial.Position) error
	UpdateFloor(sessionID string, floor int) error
	Cleanup(sessionID string) error
}

// NoopCollaborator satisfies ARCollaborator with no rendering attached,
// for non-AR deployments and tests.
type NoopCollaborator struct{}

func (NoopCollaborator) CreateArrow(string) error { return nil }

func (NoopCollaborator) UpdateArrowTarget(string, routing.Waypoint) error { return nil }

func (NoopCollaborator) CreateNavigationOverlay(string, *routing.Route) error { return nil }

func (NoopCollaborator) UpdateNavigationOverlay(string, NavigationUpdate) error { return nil }

func (NoopCollaborator) AddBreadcrumb(string, spatial.Position) error { return nil }

func (NoopCollaborator) UpdateFloor(string, int) error { return nil }

func (NoopCollaborator) Cleanup(string) error { return nil }

// EventSink receives every event a session emits. Used by the websocket
// stream and the audit logger.
//
// Publish must not block; slow consumers drop events rather than stalling
// the tick loop.
type EventSink interface {
	Publish(e Event)
}
