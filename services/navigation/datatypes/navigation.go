// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request and response bodies for the
// navigation HTTP surface. Requests carry go-playground/validator tags and
// a Validate method; handlers call Validate after binding so that a
// malformed body never reaches a service layer.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/wayfarer-systems/terminus/services/navigation/session"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// validate is the shared validator instance for all request types.
var validate = validator.New()

// ErrorResponse is the uniform error body for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StartNavigationRequest creates a navigation session.
//
// The session plans a route from the user's current fused position, so the
// caller must have pushed beacon or SLAM updates for this user first.
type StartNavigationRequest struct {
	UserID      string                           `json:"user_id" validate:"required,max=128"`
	Terminal    string                           `json:"terminal" validate:"required,max=64"`
	Destination string                           `json:"destination" validate:"required,max=128"`
	Mode        string                           `json:"mode" validate:"omitempty,oneof=ar 2d audio"`
	Constraints spatial.AccessibilityConstraints `json:"constraints"`
	Preferences session.Preferences              `json:"preferences"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *StartNavigationRequest) Validate() error {
	return validate.Struct(r)
}

// StopNavigationRequest cancels a session. The reason is carried on the
// cancellation event for the audit trail.
type StopNavigationRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *StopNavigationRequest) Validate() error {
	return validate.Struct(r)
}

// StartNavigationResponse returns the new session and its planned route.
type StartNavigationResponse struct {
	Session session.Snapshot `json:"session"`
}

// SessionStatusResponse returns a point-in-time view of a session.
type SessionStatusResponse struct {
	Session session.Snapshot `json:"session"`
}
