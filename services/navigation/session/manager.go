// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

var (
	// ErrSessionNotFound means no active session has the given ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished means the session is in a terminal state.
	ErrSessionFinished = errors.New("session already finished")
	// ErrTooManySessions means the manager is at capacity.
	ErrTooManySessions = errors.New("session capacity reached")
	// ErrInvalidRequest wraps start-request validation failures.
	ErrInvalidRequest = errors.New("invalid session request")
)

// Positioner supplies fused position estimates per user.
type Positioner interface {
	Estimate(userID string) (spatial.Position, float64, error)
}

// Config tunes the session manager.
type Config struct {
	// MaxSessions caps concurrently active sessions.
	MaxSessions int
	// DefaultUpdateHz is the tick rate when preferences leave it unset.
	DefaultUpdateHz float64
	// MaxMissedTicks is how many consecutive failed position estimates
	// count as sustained positioning loss.
	MaxMissedTicks int
	// SessionTTL expires sessions with no successful update; the sweeper
	// moves them to ERROR and tears them down.
	SessionTTL time.Duration
	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:     5000,
		DefaultUpdateHz: 1.0,
		MaxMissedTicks:  5,
		SessionTTL:      30 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSessions <= 0 {
		c.MaxSessions = def.MaxSessions
	}
	if c.DefaultUpdateHz <= 0 {
		c.DefaultUpdateHz = def.DefaultUpdateHz
	}
	if c.MaxMissedTicks <= 0 {
		c.MaxMissedTicks = def.MaxMissedTicks
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}

// StartRequest describes a new navigation session.
type StartRequest struct {
	UserID      string
	Terminal    string
	Destination string // destination node ID
	Mode        Mode
	Constraints spatial.AccessibilityConstraints
	Preferences Preferences
}

// Manager owns every active session: creation, per-session tick loops,
// waypoint progression, and teardown.
type Manager struct {
	cfg        Config
	positioner Positioner
	graphs     *spatial.GraphStore
	routes     *routing.RouteCache
	collab     ARCollaborator
	sink       EventSink
	log        *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sweepStop    chan struct{}
	sweepDone    chan struct{}
	sweepOnce    sync.Once
	sweeperAlive bool
}

// NewManager wires a session manager. collab and sink may be nil.
func NewManager(cfg Config, positioner Positioner, graphs *spatial.GraphStore, routes *routing.RouteCache, collab ARCollaborator, sink EventSink, log *logging.Logger) *Manager {
	return &Manager{
		cfg:        cfg.withDefaults(),
		positioner: positioner,
		graphs:     graphs,
		routes:     routes,
		collab:     collab,
		sink:       sink,
		log:        log,
		sessions:   make(map[string]*Session),
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}
}

// Start creates a session: estimate the user's position, plan a route to
// the destination, register the session, and begin its tick loop.
//
// Failure taxonomy: fusion.ErrPositioningLost when the user cannot be
// located, spatial.ErrMapDataMissing when the terminal has no graph,
// routing.ErrRouteNotFound when no admissible route exists. All are fatal
// to the request, none change manager state.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	if err := validateStart(req); err != nil {
		return Snapshot{}, err
	}

	pos, _, err := m.positioner.Estimate(req.UserID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("locate user %s: %w", req.UserID, err)
	}

	g, err := m.graphs.Get(req.Terminal)
	if err != nil {
		return Snapshot{}, err
	}
	if _, ok := g.Node(req.Destination); !ok {
		return Snapshot{}, fmt.Errorf("%w: unknown destination %q", routing.ErrRouteNotFound, req.Destination)
	}

	start := nearestNode(g, pos)
	if start == nil {
		return Snapshot{}, fmt.Errorf("%w: no nodes on floor %d", spatial.ErrMapDataMissing, pos.Floor)
	}

	key := routing.CacheKey(req.Terminal, start.ID, req.Destination, req.Constraints)
	route, err := m.routes.GetOrCompute(ctx, key, func(ctx context.Context) (*routing.Route, error) {
		return routing.FindPath(g, start.ID, req.Destination, req.Constraints)
	})
	if err != nil {
		return Snapshot{}, err
	}

	s := &Session{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Terminal:    req.Terminal,
		Destination: req.Destination,
		Mode:        req.Mode,
		Constraints: req.Constraints,
		Preferences: req.Preferences,
		route:       route,
		status:      StatusCreated,
		startedAt:   time.Now(),
		lastPos:     pos,
		cancel:      make(chan struct{}),
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return Snapshot{}, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.mu.Lock()
	s.status = StatusActive
	s.mu.Unlock()

	if s.Mode == ModeAR && m.collab != nil {
		m.arCall("create_overlay", s.ID, m.collab.CreateNavigationOverlay(s.ID, route))
		m.arCall("create_arrow", s.ID, m.collab.CreateArrow(s.ID))
		if len(route.Waypoints) > 1 {
			m.arCall("update_arrow", s.ID, m.collab.UpdateArrowTarget(s.ID, route.Waypoints[1]))
		}
	}

	go m.run(s)

	if m.log != nil {
		m.log.Info("navigation session started",
			"session_id", s.ID,
			"terminal", s.Terminal,
			"destination", s.Destination,
			"waypoints", len(route.Waypoints))
	}
	return s.Snapshot(), nil
}

// Update applies a client-pushed position to a session, advancing waypoint
// progress and returning the resulting guidance payload.
func (m *Manager) Update(sessionID string, pos spatial.Position) (*NavigationUpdate, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	return m.apply(s, pos, 1.0)
}

// Stop ends a session and waits for its tick goroutine to exit, so no
// guidance event is emitted after Stop returns.
func (m *Manager) Stop(sessionID, reason string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}
	if s.Status().Terminal() {
		return ErrSessionFinished
	}

	s.finish(StatusCancelled)
	<-s.done

	s.emit(Event{
		Type:      EventCancelled,
		SessionID: s.ID,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	m.teardown(s)

	if m.log != nil {
		m.log.Info("navigation session stopped", "session_id", s.ID, "reason", reason)
	}
	return nil
}

// Status returns the current snapshot of a session.
func (m *Manager) Status(sessionID string) (Snapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// Subscribe attaches an event stream to a session. The cancel function
// detaches it; the channel closes at session teardown.
func (m *Manager) Subscribe(sessionID string) (<-chan Event, func(), error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.subscribe(16)
	return ch, cancel, nil
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartSweeper launches the expiry sweeper. Stopped by Close.
func (m *Manager) StartSweeper() {
	m.mu.Lock()
	m.sweeperAlive = true
	m.mu.Unlock()
	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.sweepStop:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Close stops the sweeper and cancels every active session.
func (m *Manager) Close() {
	m.sweepOnce.Do(func() { close(m.sweepStop) })
	m.mu.RLock()
	alive := m.sweeperAlive
	m.mu.RUnlock()
	if alive {
		<-m.sweepDone
	}

	m.mu.Lock()
	active := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		active = append(active, s)
	}
	m.mu.Unlock()

	for _, s := range active {
		s.finish(StatusCancelled)
		<-s.done
		m.teardown(s)
	}
}

// run is the per-session tick loop. Each tick pulls a fused position and
// advances guidance; estimate failures degrade rather than end the session.
func (m *Manager) run(s *Session) {
	defer close(s.done)

	hz := s.Preferences.UpdateHz
	if hz <= 0 {
		hz = m.cfg.DefaultUpdateHz
	}
	if hz > 10 {
		hz = 10
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()

	for {
		select {
		case <-s.cancel:
			return
		case <-ticker.C:
			m.tick(s)
		}
	}
}

func (m *Manager) tick(s *Session) {
	pos, conf, err := m.positioner.Estimate(s.UserID)
	if err != nil {
		m.handleEstimateFailure(s)
		return
	}

	s.mu.Lock()
	s.missedTicks = 0
	s.mu.Unlock()

	if _, err := m.apply(s, pos, conf); err != nil && !errors.Is(err, ErrSessionFinished) {
		if m.log != nil {
			m.log.Warn("session update failed", "session_id", s.ID, "error", err.Error())
		}
	}
}

// handleEstimateFailure implements degraded behavior: a brief loss holds
// the last instruction silently; a sustained loss emits a positioning-lost
// event once per threshold crossing. The session never dies from losing
// position.
func (m *Manager) handleEstimateFailure(s *Session) {
	s.mu.Lock()
	s.missedTicks++
	crossed := s.missedTicks == m.cfg.MaxMissedTicks
	s.mu.Unlock()

	if crossed {
		s.emit(Event{
			Type:      EventPositioningLost,
			SessionID: s.ID,
			Timestamp: time.Now(),
			Reason:    "sustained positioning loss",
		})
		m.publish(Event{Type: EventPositioningLost, SessionID: s.ID, Timestamp: time.Now()})
		if m.log != nil {
			m.log.Warn("positioning lost", "session_id", s.ID, "user_id", s.UserID)
		}
	}
}

// apply advances the session with a new position. Runs under the session
// lock; emits progression events after releasing it.
func (m *Manager) apply(s *Session, pos spatial.Position, conf float64) (*NavigationUpdate, error) {
	s.mu.Lock()

	if s.status.Terminal() {
		s.mu.Unlock()
		return nil, ErrSessionFinished
	}

	// Heading from observed movement; stand-still keeps the previous one.
	if moved := s.lastPos.DistanceTo(pos); moved > 0.3 {
		s.heading = spatial.Bearing(s.lastPos.X, s.lastPos.Y, pos.X, pos.Y)
	}
	s.lastPos = pos

	var events []Event
	waypoints := s.route.Waypoints

	// Advance through every waypoint within the arrival radius; a fast
	// walker can pass two close waypoints between ticks.
	for s.index < len(waypoints)-1 {
		next := waypoints[s.index+1]
		if spatial.Distance2D(pos.X, pos.Y, next.X, next.Y) > arrivalThreshold {
			break
		}
		// An elevator's upper landing shares X,Y with the lower one;
		// arrival also requires being on the waypoint's floor.
		if next.Floor != pos.Floor {
			break
		}
		s.index++
		reached := waypoints[s.index]
		events = append(events, Event{
			Type:      EventNextWaypoint,
			SessionID: s.ID,
			Timestamp: time.Now(),
			Waypoint:  &reached,
		})
		if reached.EdgeFromPrev != nil && reached.EdgeFromPrev.FloorChange {
			prev := waypoints[s.index-1]
			instr := FloorChangeInstruction(reached, prev.Floor, s.Preferences.VoiceGuidance)
			events = append(events, Event{
				Type:        EventFloorChange,
				SessionID:   s.ID,
				Timestamp:   time.Now(),
				Waypoint:    &reached,
				Instruction: &instr,
				FromFloor:   prev.Floor,
				ToFloor:     reached.Floor,
			})
		}
	}

	completed := s.index == len(waypoints)-1

	var update *NavigationUpdate
	if completed {
		s.lastUpdate = &NavigationUpdate{
			Position:      pos,
			Confidence:    conf,
			WaypointIndex: s.index,
			NextWaypoint:  waypoints[s.index],
			Instruction: Instruction{
				Text:  "You have arrived",
				Turn:  TurnForward,
				Audio: s.Preferences.VoiceGuidance,
			},
			Status: StatusCompleted,
		}
		update = s.lastUpdate
	} else {
		next := waypoints[s.index+1]
		remaining := spatial.Distance2D(pos.X, pos.Y, next.X, next.Y)
		for _, wp := range waypoints[s.index+2:] {
			remaining += wp.EdgeFromPrev.DistanceMeters
		}
		s.lastUpdate = &NavigationUpdate{
			Position:          pos,
			Confidence:        conf,
			WaypointIndex:     s.index,
			NextWaypoint:      next,
			Instruction:       BuildInstruction(pos, s.heading, next, s.Preferences.VoiceGuidance),
			RemainingDistance: remaining,
			RemainingTime:     routing.EstimateTime(remaining),
			Status:            s.status,
		}
		update = s.lastUpdate
	}

	detailed := s.Preferences.DetailedVisual
	s.mu.Unlock()

	ar := s.Mode == ModeAR && m.collab != nil
	for _, e := range events {
		if e.Type == EventFloorChange && ar {
			m.arCall("update_floor", s.ID, m.collab.UpdateFloor(s.ID, e.ToFloor))
		}
		s.emit(e)
		m.publish(e)
	}

	upd := Event{Type: EventUpdate, SessionID: s.ID, Timestamp: time.Now(), Update: update}
	s.emit(upd)
	m.publish(upd)
	if ar {
		m.arCall("update_overlay", s.ID, m.collab.UpdateNavigationOverlay(s.ID, *update))
		if !completed {
			m.arCall("update_arrow", s.ID, m.collab.UpdateArrowTarget(s.ID, update.NextWaypoint))
		}
	}
	if detailed && !completed {
		s.emit(Event{Type: EventBreadcrumb, SessionID: s.ID, Timestamp: time.Now(), Update: update})
		if ar {
			m.arCall("add_breadcrumb", s.ID, m.collab.AddBreadcrumb(s.ID, pos))
		}
	}

	if completed {
		s.finish(StatusCompleted)
		// Teardown from the API path would deadlock the tick goroutine on
		// its own done channel, so it runs detached.
		go func() {
			<-s.done
			done := Event{Type: EventCompleted, SessionID: s.ID, Timestamp: time.Now()}
			s.emit(done)
			m.publish(done)
			m.teardown(s)
			if m.log != nil {
				m.log.Info("navigation session completed", "session_id", s.ID)
			}
		}()
	}

	return update, nil
}

// sweep expires sessions whose last successful update is older than the
// TTL. Expired sessions end in ERROR and are torn down.
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.cfg.SessionTTL)

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastPos.Timestamp.Before(cutoff) && s.startedAt.Before(cutoff)
		s.mu.Unlock()
		if stale {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		s.finish(StatusError)
		<-s.done
		s.emit(Event{
			Type:      EventError,
			SessionID: s.ID,
			Timestamp: time.Now(),
			Reason:    "session expired",
		})
		m.teardown(s)
		if m.log != nil {
			m.log.Warn("navigation session expired", "session_id", s.ID)
		}
	}
}

// teardown removes the session from the registry and releases AR and
// subscriber resources. Idempotent; the tick goroutine must already be
// stopped.
func (m *Manager) teardown(s *Session) {
	s.teardownOne.Do(func() {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()

		if s.Mode == ModeAR && m.collab != nil {
			m.arCall("cleanup", s.ID, m.collab.Cleanup(s.ID))
		}
		s.closeSubscribers()
	})
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// arCall logs a failed collaborator call. Rendering failures never affect
// guidance.
func (m *Manager) arCall(op, sessionID string, err error) {
	if err != nil && m.log != nil {
		m.log.Warn("ar collaborator call failed", "op", op, "session_id", sessionID, "error", err.Error())
	}
}

func (m *Manager) publish(e Event) {
	if m.sink != nil {
		m.sink.Publish(e)
	}
}

func validateStart(req StartRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidRequest)
	}
	if req.Terminal == "" {
		return fmt.Errorf("%w: terminal required", ErrInvalidRequest)
	}
	if req.Destination == "" {
		return fmt.Errorf("%w: destination required", ErrInvalidRequest)
	}
	if req.Mode != "" && !req.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	return nil
}

// nearestNode returns the node closest to the position, preferring the
// position's floor and falling back to the whole terminal when the floor
// has no nodes.
func nearestNode(g *spatial.RoutingGraph, pos spatial.Position) *spatial.Node {
	candidates := g.NodesOnFloor(pos.Floor)
	if len(candidates) == 0 {
		candidates = g.Nodes()
	}

	var best *spatial.Node
	bestDist := 0.0
	for _, n := range candidates {
		d := spatial.Distance2D(pos.X, pos.Y, n.X, n.Y)
		if best == nil || d < bestDist {
			best = n
			bestDist = d
		}
	}
	return best
}
