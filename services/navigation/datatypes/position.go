// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// MaxBeaconsPerUpdate bounds one beacon batch. Real scans rarely see more
// than a dozen beacons; anything past this is a misbehaving client.
const MaxBeaconsPerUpdate = 50

// BeaconObservation is one observed beacon in a scan batch.
type BeaconObservation struct {
	BeaconID         string  `json:"beacon_id" validate:"required,max=64"`
	RSSI             float64 `json:"rssi" validate:"lte=0"`
	MeasuredDistance float64 `json:"measured_distance" validate:"gte=0"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Z                float64 `json:"z"`
}

// BeaconUpdateRequest ingests a batch of beacon observations for one user.
type BeaconUpdateRequest struct {
	UserID  string              `json:"user_id" validate:"required,max=128"`
	Beacons []BeaconObservation `json:"beacons" validate:"required,min=1,max=50,dive"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *BeaconUpdateRequest) Validate() error {
	return validate.Struct(r)
}

// SLAMUpdateRequest ingests one visual-tracker pose for a user.
type SLAMUpdateRequest struct {
	UserID     string  `json:"user_id" validate:"required,max=128"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *SLAMUpdateRequest) Validate() error {
	return validate.Struct(r)
}

// PositionResponse is the fused position estimate for one user.
type PositionResponse struct {
	Position   spatial.Position `json:"position"`
	Confidence float64          `json:"confidence"`
}
