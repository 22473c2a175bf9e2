// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the lifecycle of active navigation sessions: route
// planning on start, per-session guidance ticks, waypoint progression, and
// strict teardown with no ticks after stop.
package session

import (
	"sync"
	"time"

	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// Mode selects the client rendering surface.
type Mode string

const (
	ModeAR    Mode = "ar"
	Mode2D    Mode = "2d"
	ModeAudio Mode = "audio"
)

// Valid reports whether the mode is one of the supported surfaces.
func (m Mode) Valid() bool {
	switch m {
	case ModeAR, Mode2D, ModeAudio:
		return true
	}
	return false
}

// Status is the session lifecycle state.
//
// Transitions: CREATED -> ACTIVE -> {COMPLETED, CANCELLED, ERROR}.
// The three terminal states are final.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Preferences tune per-session guidance behavior.
type Preferences struct {
	// UpdateHz is the guidance tick rate. Clamped to [0.2, 10].
	UpdateHz float64 `json:"update_hz" yaml:"update_hz"`
	// VoiceGuidance enables audio prompts near waypoints.
	VoiceGuidance bool `json:"voice_guidance" yaml:"voice_guidance"`
	// DetailedVisual enables breadcrumb events on every update.
	DetailedVisual bool `json:"detailed_visual" yaml:"detailed_visual"`
}

// Session is one active navigation session. All mutable state is guarded
// by mu; the tick goroutine and API calls both go through it.
type Session struct {
	ID          string
	UserID      string
	Terminal    string
	Destination string
	Mode        Mode
	Constraints spatial.AccessibilityConstraints
	Preferences Preferences

	mu          sync.Mutex
	route       *routing.Route
	index       int // last reached waypoint, monotone non-decreasing
	status      Status
	startedAt   time.Time
	endedAt     time.Time
	lastPos     spatial.Position
	heading     float64
	lastUpdate  *NavigationUpdate
	missedTicks int

	cancel      chan struct{} // closed exactly once by finish
	done        chan struct{} // closed when the tick goroutine exits
	finishOne   sync.Once
	teardownOne sync.Once

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// Snapshot is a point-in-time copy of session state, safe to hand out.
type Snapshot struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Terminal      string            `json:"terminal"`
	Destination   string            `json:"destination"`
	Mode          Mode              `json:"mode"`
	Status        Status            `json:"status"`
	Route         *routing.Route    `json:"route"`
	WaypointIndex int               `json:"waypoint_index"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at,omitempty"`
	LastUpdate    *NavigationUpdate `json:"last_update,omitempty"`
}

// Snapshot returns a copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		UserID:        s.UserID,
		Terminal:      s.Terminal,
		Destination:   s.Destination,
		Mode:          s.Mode,
		Status:        s.status,
		Route:         s.route,
		WaypointIndex: s.index,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		LastUpdate:    s.lastUpdate,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// finish moves the session to a terminal status and signals the tick
// goroutine to exit. Idempotent; the first caller's status wins.
func (s *Session) finish(status Status) {
	s.finishOne.Do(func() {
		s.mu.Lock()
		s.status = status
		s.endedAt = time.Now()
		s.mu.Unlock()
		close(s.cancel)
	})
}

// subscribe registers an event channel. The returned cancel function
// unregisters it; the channel is closed at session teardown.
func (s *Session) subscribe(buffer int) (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, buffer)
	if s.subscribers == nil {
		s.subscribers = make(map[int]chan Event)
	}
	s.subscribers[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// emit fans an event out to subscribers without blocking: a full channel
// drops the event rather than stalling the tick loop.
func (s *Session) emit(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// closeSubscribers closes every subscriber channel at teardown.
func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
