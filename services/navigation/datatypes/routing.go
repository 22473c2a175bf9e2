// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// MaxAlternativeRoutes caps how many alternatives one request may ask for.
const MaxAlternativeRoutes = 3

// ComputeRouteRequest asks for a path between two named graph nodes.
type ComputeRouteRequest struct {
	Terminal     string                           `json:"terminal" validate:"required,max=64"`
	Start        string                           `json:"start" validate:"required,max=128"`
	End          string                           `json:"end" validate:"required,max=128"`
	Constraints  spatial.AccessibilityConstraints `json:"constraints"`
	Alternatives int                              `json:"alternatives" validate:"gte=0,lte=3"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *ComputeRouteRequest) Validate() error {
	return validate.Struct(r)
}

// ComputeRouteResponse carries the best route plus any alternatives found.
type ComputeRouteResponse struct {
	Route        *routing.Route   `json:"route"`
	Alternatives []*routing.Route `json:"alternatives,omitempty"`
}

// ValidateRouteRequest checks a client-proposed node sequence against the
// live graph and the caller's constraints.
type ValidateRouteRequest struct {
	Terminal    string                           `json:"terminal" validate:"required,max=64"`
	NodeIDs     []string                         `json:"node_ids" validate:"required,min=2,max=512,dive,required,max=128"`
	Constraints spatial.AccessibilityConstraints `json:"constraints"`
}

// Validate checks the request beyond JSON well-formedness.
func (r *ValidateRouteRequest) Validate() error {
	return validate.Struct(r)
}

// ValidateRouteResponse reports whether the proposed path is walkable. When
// it is not, Reason carries the first violation found.
type ValidateRouteResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
