// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fusion combines beacon trilateration and visual-tracking (SLAM)
// pose into a smoothed per-user position estimate.
//
// The beacon estimate is a weighted centroid of visible beacons' known
// positions with weight 10^(rssi/20), so closer and stronger beacons
// dominate. This is deliberately NOT true multilateration (intersecting
// range circles): the centroid is cheaper, degrades gracefully with two or
// fewer beacons, and its accuracy is sufficient once the Kalman filter
// smooths successive ticks. The tradeoff is documented here so a future
// accuracy push knows where to look.
//
// Per-user filter state must only ever be touched by one update at a time;
// concurrent updates for the same user are serialized by a per-user mutex.
// Violating that would not crash but silently diverges the filter, which is
// why the property gets its own concurrency test.
package fusion

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// ErrPositioningLost is returned by Estimate when neither beacons nor SLAM
// have fresh data. Transient: the next tick may succeed, and an active
// navigation session must not be terminated because of it.
var ErrPositioningLost = errors.New("positioning lost: no fresh beacon or slam data")

// FloorResolver maps a vertical coordinate to a floor number. The spatial
// graph satisfies this; fusion needs nothing else from it.
type FloorResolver interface {
	FloorForZ(z float64) (int, bool)
}

// BeaconReading is one observation of a fixed beacon. Readings are owned
// exclusively by the engine's per-user beacon set and evicted once
// now-LastSeen exceeds MaxBeaconAge.
type BeaconReading struct {
	BeaconID         string
	RSSI             float64
	MeasuredDistance float64 // meters, 0 when only RSSI is known
	X, Y, Z          float64 // surveyed beacon position
	LastSeen         time.Time
}

// SLAMPose is an opaque pose+confidence input from the visual tracker.
type SLAMPose struct {
	X, Y, Z    float64
	Confidence float64 // [0,1]
	Timestamp  time.Time
}

// Config tunes the fusion engine. Zero values are replaced by defaults.
type Config struct {
	// MaxBeaconAge evicts beacon readings not seen within this window.
	MaxBeaconAge time.Duration
	// MaxSLAMAge is how long a SLAM pose stays usable.
	MaxSLAMAge time.Duration
	// MinBeacons is the visible-beacon count below which beacon weight is
	// scaled down proportionally and SLAM compensates.
	MinBeacons int
	// TargetBeacons is the count at which confidence saturates at 1.
	TargetBeacons int
	// BeaconWeight and SLAMWeight blend the two estimates. They are
	// renormalized at estimate time, so only the ratio matters.
	BeaconWeight float64
	SLAMWeight   float64
	// ProcessNoise and MeasurementNoise parameterize the per-axis Kalman
	// filter.
	ProcessNoise     float64
	MeasurementNoise float64
	// StateTTL evicts a user's fusion state after this much inactivity.
	StateTTL time.Duration
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration
	// MaxUsers caps the per-user state registry. At capacity, updates for
	// unknown users are rejected rather than growing without bound.
	MaxUsers int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBeaconAge:     5 * time.Second,
		MaxSLAMAge:       2 * time.Second,
		MinBeacons:       3,
		TargetBeacons:    5,
		BeaconWeight:     0.6,
		SLAMWeight:       0.4,
		ProcessNoise:     0.05,
		MeasurementNoise: 1.5,
		StateTTL:         2 * time.Minute,
		SweepInterval:    30 * time.Second,
		MaxUsers:         10000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBeaconAge <= 0 {
		c.MaxBeaconAge = d.MaxBeaconAge
	}
	if c.MaxSLAMAge <= 0 {
		c.MaxSLAMAge = d.MaxSLAMAge
	}
	if c.MinBeacons <= 0 {
		c.MinBeacons = d.MinBeacons
	}
	if c.TargetBeacons <= 0 {
		c.TargetBeacons = d.TargetBeacons
	}
	if c.BeaconWeight <= 0 {
		c.BeaconWeight = d.BeaconWeight
	}
	if c.SLAMWeight <= 0 {
		c.SLAMWeight = d.SLAMWeight
	}
	if c.ProcessNoise <= 0 {
		c.ProcessNoise = d.ProcessNoise
	}
	if c.MeasurementNoise <= 0 {
		c.MeasurementNoise = d.MeasurementNoise
	}
	if c.StateTTL <= 0 {
		c.StateTTL = d.StateTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.MaxUsers <= 0 {
		c.MaxUsers = d.MaxUsers
	}
	return c
}

// userState is the FusionState for one user. All fields are guarded by mu;
// every beacon/SLAM update and every estimate for the same user serializes
// on it so the Kalman filters stay consistent.
type userState struct {
	mu sync.Mutex

	beacons map[string]BeaconReading
	slam    *SLAMPose

	fx, fy, fz *kalman1D

	lastPosition   *spatial.Position
	lastConfidence float64
	lastActivity   time.Time
}

// Engine fuses beacon and SLAM input into smoothed positions.
type Engine struct {
	cfg    Config
	floors FloorResolver
	logger *logging.Logger

	mu    sync.RWMutex
	users map[string]*userState

	done    chan struct{}
	stopped sync.Once
}

// NewEngine creates a fusion engine. floors may be nil, in which case the
// floor of the last known position is carried forward.
func NewEngine(cfg Config, floors FloorResolver, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		floors: floors,
		users:  make(map[string]*userState),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ErrTooManyUsers is returned when the per-user registry is at capacity.
var ErrTooManyUsers = errors.New("fusion state registry at capacity")

func (e *Engine) state(userID string) (*userState, error) {
	e.mu.RLock()
	st, ok := e.users[userID]
	e.mu.RUnlock()
	if ok {
		return st, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.users[userID]; ok {
		return st, nil
	}
	if len(e.users) >= e.cfg.MaxUsers {
		return nil, ErrTooManyUsers
	}
	st = &userState{
		beacons:      make(map[string]BeaconReading),
		fx:           newKalman1D(e.cfg.ProcessNoise, e.cfg.MeasurementNoise),
		fy:           newKalman1D(e.cfg.ProcessNoise, e.cfg.MeasurementNoise),
		fz:           newKalman1D(e.cfg.ProcessNoise, e.cfg.MeasurementNoise),
		lastActivity: time.Now(),
	}
	e.users[userID] = st
	return st, nil
}

// UpdateBeacon records a beacon observation for a user.
func (e *Engine) UpdateBeacon(userID string, reading BeaconReading) error {
	st, err := e.state(userID)
	if err != nil {
		return err
	}
	if reading.LastSeen.IsZero() {
		reading.LastSeen = time.Now()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.beacons[reading.BeaconID] = reading
	st.lastActivity = time.Now()
	return nil
}

// UpdateSLAM records a visual-tracking pose for a user.
func (e *Engine) UpdateSLAM(userID string, pose SLAMPose) error {
	st, err := e.state(userID)
	if err != nil {
		return err
	}
	if pose.Timestamp.IsZero() {
		pose.Timestamp = time.Now()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.slam = &pose
	st.lastActivity = time.Now()
	return nil
}

// Estimate computes the current fused position for a user.
//
// Returns ErrPositioningLost when neither source has fresh data. The
// returned confidence is min(1, visibleBeacons/TargetBeacons) and is
// non-decreasing in visible beacon count.
func (e *Engine) Estimate(userID string) (spatial.Position, float64, error) {
	e.mu.RLock()
	st, ok := e.users[userID]
	e.mu.RUnlock()
	if !ok {
		return spatial.Position{}, 0, ErrPositioningLost
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	// Evict stale beacons in place.
	for id, b := range st.beacons {
		if now.Sub(b.LastSeen) > e.cfg.MaxBeaconAge {
			delete(st.beacons, id)
		}
	}

	bx, by, bz, visible := weightedCentroid(st.beacons)
	slamFresh := st.slam != nil && now.Sub(st.slam.Timestamp) <= e.cfg.MaxSLAMAge && st.slam.Confidence > 0

	if visible == 0 && !slamFresh {
		return spatial.Position{}, 0, ErrPositioningLost
	}

	beaconW := e.cfg.BeaconWeight
	slamW := 0.0
	if visible < e.cfg.MinBeacons {
		// Scale beacon trust down proportionally and let SLAM pick up
		// the slack.
		frac := float64(visible) / float64(e.cfg.MinBeacons)
		shifted := e.cfg.BeaconWeight * (1 - frac)
		beaconW = e.cfg.BeaconWeight * frac
		if slamFresh {
			slamW = e.cfg.SLAMWeight + shifted
		}
	} else if slamFresh {
		slamW = e.cfg.SLAMWeight
	}
	if slamFresh {
		slamW *= st.slam.Confidence
	}

	var x, y, z float64
	switch {
	case visible > 0 && slamW > 0:
		total := beaconW + slamW
		x = (bx*beaconW + st.slam.X*slamW) / total
		y = (by*beaconW + st.slam.Y*slamW) / total
		z = (bz*beaconW + st.slam.Z*slamW) / total
	case visible > 0:
		x, y, z = bx, by, bz
	default:
		x, y, z = st.slam.X, st.slam.Y, st.slam.Z
	}

	x = st.fx.Update(x)
	y = st.fy.Update(y)
	z = st.fz.Update(z)

	floor := 0
	if e.floors != nil {
		if f, ok := e.floors.FloorForZ(z); ok {
			floor = f
		} else if st.lastPosition != nil {
			floor = st.lastPosition.Floor
		}
	} else if st.lastPosition != nil {
		floor = st.lastPosition.Floor
	}

	accuracy := math.Sqrt(st.fx.Variance() + st.fy.Variance())
	if accuracy <= 0 {
		accuracy = e.cfg.MeasurementNoise
	}

	confidence := math.Min(1, float64(visible)/float64(e.cfg.TargetBeacons))

	pos := spatial.Position{
		X: x, Y: y, Z: z,
		Floor:     floor,
		Accuracy:  accuracy,
		Timestamp: now,
	}
	st.lastPosition = &pos
	st.lastConfidence = confidence
	st.lastActivity = now

	return pos, confidence, nil
}

// LastKnown returns the most recent estimate for a user without computing
// a new one. Used for degraded "hold last position" behavior.
func (e *Engine) LastKnown(userID string) (spatial.Position, float64, bool) {
	e.mu.RLock()
	st, ok := e.users[userID]
	e.mu.RUnlock()
	if !ok {
		return spatial.Position{}, 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.lastPosition == nil {
		return spatial.Position{}, 0, false
	}
	return *st.lastPosition, st.lastConfidence, true
}

// Forget drops a user's fusion state.
func (e *Engine) Forget(userID string) {
	e.mu.Lock()
	delete(e.users, userID)
	e.mu.Unlock()
}

// UserCount returns the number of tracked users.
func (e *Engine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}

// StartSweeper launches the background expiry sweep that evicts users
// inactive longer than StateTTL. Stops when ctx is cancelled or Stop is
// called.
func (e *Engine) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-ticker.C:
				e.sweep()
			}
		}
	}()
}

// Stop halts the sweeper. Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopped.Do(func() { close(e.done) })
}

func (e *Engine) sweep() {
	cutoff := time.Now().Add(-e.cfg.StateTTL)

	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := 0
	for id, st := range e.users {
		st.mu.Lock()
		stale := st.lastActivity.Before(cutoff)
		st.mu.Unlock()
		if stale {
			delete(e.users, id)
			evicted++
		}
	}
	if evicted > 0 {
		e.logger.Debug("fusion state sweep", "evicted", evicted, "remaining", len(e.users))
	}
}

// weightedCentroid blends beacon positions by signal strength. The weight
// 10^(rssi/20) grows as the beacon gets closer (RSSI less negative): under
// the log-distance path loss model it is proportional to 1/distance, so a
// -50 dBm beacon outweighs a -80 dBm one by a factor of ~31.
func weightedCentroid(beacons map[string]BeaconReading) (x, y, z float64, count int) {
	var totalW float64
	for _, b := range beacons {
		w := math.Pow(10, b.RSSI/20)
		x += b.X * w
		y += b.Y * w
		z += b.Z * w
		totalW += w
		count++
	}
	if count == 0 || totalW == 0 {
		return 0, 0, 0, count
	}
	return x / totalW, y / totalW, z / totalW, count
}
