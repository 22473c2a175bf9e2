// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fusion

// kalman1D is a scalar Kalman filter with fixed process and measurement
// noise. One instance per axis per user; state persists across ticks so
// jitter in the blended estimate is smoothed over time.
type kalman1D struct {
	mean         float64
	variance     float64
	processNoise float64
	measureNoise float64
	initialized  bool
}

func newKalman1D(processNoise, measureNoise float64) *kalman1D {
	return &kalman1D{
		processNoise: processNoise,
		measureNoise: measureNoise,
	}
}

// Update folds a new measurement into the filter and returns the smoothed
// estimate. The first measurement seeds the state directly.
func (k *kalman1D) Update(measurement float64) float64 {
	if !k.initialized {
		k.mean = measurement
		k.variance = k.measureNoise
		k.initialized = true
		return k.mean
	}

	// Predict: state is assumed stationary between ticks, only the
	// uncertainty grows.
	k.variance += k.processNoise

	// Correct.
	gain := k.variance / (k.variance + k.measureNoise)
	k.mean += gain * (measurement - k.mean)
	k.variance *= 1 - gain

	return k.mean
}

// Variance returns the current estimate variance.
func (k *kalman1D) Variance() float64 { return k.variance }

// Reset clears the filter state. Used when a user's state is recreated
// after eviction so a stale mean cannot drag the new track.
func (k *kalman1D) Reset() {
	k.mean = 0
	k.variance = 0
	k.initialized = false
}
