// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
)

// HandleComputeRoute handles POST /v1/routes/compute.
//
// Description:
//
//	Computes the optimal accessible route between two named graph nodes.
//	Results come from the route cache when a prior request already paid
//	for the search; alternatives are always computed fresh.
//
// Response:
//
//	200 OK: ComputeRouteResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown terminal or node
//	422 Unprocessable Entity: No admissible route
func (h *Handlers) HandleComputeRoute(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleComputeRoute")

	var req datatypes.ComputeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := h.graphs.Get(req.Terminal)
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TERMINAL_NOT_FOUND",
		})
		return
	}

	computed := false
	key := routing.CacheKey(req.Terminal, req.Start, req.End, req.Constraints)
	route, err := h.routes.GetOrCompute(c.Request.Context(), key, func(ctx context.Context) (*routing.Route, error) {
		computed = true
		return routing.FindPath(g, req.Start, req.End, req.Constraints)
	})
	if err != nil {
		if errors.Is(err, routing.ErrRouteNotFound) {
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
				Error: err.Error(), Code: "ROUTE_NOT_FOUND",
			})
			return
		}
		log.Error("route computation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(), Code: "ROUTE_FAILED",
		})
		return
	}

	if h.metrics != nil {
		if computed {
			h.metrics.RouteComputations.Add(c.Request.Context(), 1)
		} else {
			h.metrics.RouteCacheHits.Add(c.Request.Context(), 1)
		}
	}

	resp := datatypes.ComputeRouteResponse{Route: route}
	if req.Alternatives > 0 {
		resp.Alternatives = routing.FindAlternatives(g, route, req.Constraints, req.Alternatives)
	}

	log.Info("route computed",
		"terminal", req.Terminal,
		"start", req.Start,
		"end", req.End,
		"cached", !computed,
		"waypoints", len(route.Waypoints))
	c.JSON(http.StatusOK, resp)
}

// HandleValidateRoute handles POST /v1/routes/validate.
//
// Description:
//
//	Checks a client-proposed node sequence against the live graph: every
//	hop must be a real, admissible edge and floor crossings must use a
//	transition edge. Clients revalidate cached routes after a floor plan
//	update.
//
// Response:
//
//	200 OK: ValidateRouteResponse (valid may be false)
//	400 Bad Request: Validation error
//	404 Not Found: Unknown terminal
func (h *Handlers) HandleValidateRoute(c *gin.Context) {
	getOrCreateRequestID(c)

	var req datatypes.ValidateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := h.graphs.Get(req.Terminal)
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TERMINAL_NOT_FOUND",
		})
		return
	}

	resp := datatypes.ValidateRouteResponse{Valid: true}
	if err := routing.ValidatePath(g, req.NodeIDs, req.Constraints); err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
