// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fusion

import (
	"errors"
	"math"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// CalibrationSample is one labeled reference measurement taken during a
// survey walk: the surveyed ground-truth position alongside what each
// source reported on its own, plus the ambient noise conditions.
type CalibrationSample struct {
	Truth          spatial.Position
	BeaconEstimate spatial.Position
	SLAMEstimate   spatial.Position
	// EnvironmentNoise in [0,1] summarizes temperature/humidity/RF
	// interference at sample time; noisier environments discount the
	// beacon error less harshly since the noise is transient.
	EnvironmentNoise float64
}

// Weights is a fitted beacon/SLAM blend, normalized to sum to 1.
type Weights struct {
	Beacon float64
	SLAM   float64
}

// ErrNoSamples is returned when calibration is invoked without data.
var ErrNoSamples = errors.New("calibration requires at least one sample")

// Calibrate fits fusion weights from labeled reference samples.
//
// Offline tuning only; never called on the hot path. Each source's mean
// 2D error against ground truth is computed, the beacon error is relaxed
// by the mean environmental noise factor, and weights are set inversely
// proportional to error then renormalized. A source with zero observed
// error takes (nearly) all the weight.
func Calibrate(samples []CalibrationSample) (Weights, error) {
	if len(samples) == 0 {
		return Weights{}, ErrNoSamples
	}

	var beaconErr, slamErr, noise float64
	for _, s := range samples {
		beaconErr += s.Truth.DistanceTo(s.BeaconEstimate)
		slamErr += s.Truth.DistanceTo(s.SLAMEstimate)
		noise += s.EnvironmentNoise
	}
	n := float64(len(samples))
	beaconErr /= n
	slamErr /= n
	noise /= n

	// Part of the beacon error is attributable to transient environmental
	// noise rather than the geometry itself.
	beaconErr *= math.Max(0.1, 1-noise)

	const epsilon = 1e-6
	invBeacon := 1 / (beaconErr + epsilon)
	invSLAM := 1 / (slamErr + epsilon)
	total := invBeacon + invSLAM

	return Weights{
		Beacon: invBeacon / total,
		SLAM:   invSLAM / total,
	}, nil
}
