// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-systems/terminus/pkg/validation"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/session"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// HandleStartNavigation handles POST /v1/navigation/start.
//
// Description:
//
//	Creates a navigation session. The route is planned from the user's
//	current fused position to the requested destination node, honoring
//	the accessibility constraints on every edge.
//
// Response:
//
//	201 Created: StartNavigationResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown terminal
//	409 Conflict: User position unknown (no fresh beacon/SLAM data)
//	422 Unprocessable Entity: No admissible route to the destination
//	429 Too Many Requests: Session capacity reached
func (h *Handlers) HandleStartNavigation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleStartNavigation")

	var req datatypes.StartNavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("invalid request body", "error", err.Error())
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		log.Warn("request validation failed", "error", err.Error())
		badRequest(c, err.Error())
		return
	}
	if err := validation.ValidateUserID(req.UserID); err != nil {
		badRequest(c, err.Error())
		return
	}

	snap, err := h.sessions.Start(c.Request.Context(), session.StartRequest{
		UserID:      req.UserID,
		Terminal:    req.Terminal,
		Destination: req.Destination,
		Mode:        session.Mode(req.Mode),
		Constraints: req.Constraints,
		Preferences: req.Preferences,
	})
	if err != nil {
		status, code := startErrorStatus(err)
		log.Warn("session start rejected", "code", code, "error", err.Error())
		if h.metrics != nil {
			h.metrics.Errors.Add(c.Request.Context(), 1)
		}
		c.JSON(status, datatypes.ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsActive.Add(c.Request.Context(), 1)
	}
	log.Info("session started",
		"session_id", snap.ID,
		"terminal", snap.Terminal,
		"destination", snap.Destination)
	c.JSON(http.StatusCreated, datatypes.StartNavigationResponse{Session: snap})
}

// HandleStopNavigation handles POST /v1/navigation/:id/stop.
//
// Response:
//
//	200 OK: Final SessionStatusResponse
//	404 Not Found: Unknown session
//	409 Conflict: Session already finished
func (h *Handlers) HandleStopNavigation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleStopNavigation")
	sessionID := c.Param("id")

	var req datatypes.StopNavigationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	snap, statusErr := h.sessions.Status(sessionID)
	if err := h.sessions.Stop(sessionID, req.Reason); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
				Error: err.Error(), Code: "SESSION_NOT_FOUND",
			})
		case errors.Is(err, session.ErrSessionFinished):
			c.JSON(http.StatusConflict, datatypes.ErrorResponse{
				Error: err.Error(), Code: "SESSION_FINISHED",
			})
		default:
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: err.Error(), Code: "STOP_FAILED",
			})
		}
		return
	}

	// The sessions_active decrement rides on the cancellation event so
	// self-completed sessions are counted the same way.
	log.Info("session stopped", "session_id", sessionID, "reason", req.Reason)

	// The snapshot was taken before teardown removed the session; patch
	// the status so the caller sees the terminal state.
	if statusErr == nil {
		snap.Status = session.StatusCancelled
	}
	c.JSON(http.StatusOK, datatypes.SessionStatusResponse{Session: snap})
}

// HandleSessionStatus handles GET /v1/navigation/:id/status.
func (h *Handlers) HandleSessionStatus(c *gin.Context) {
	getOrCreateRequestID(c)
	snap, err := h.sessions.Status(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "SESSION_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, datatypes.SessionStatusResponse{Session: snap})
}

// startErrorStatus maps session start failures onto HTTP status codes.
func startErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, fusion.ErrPositioningLost):
		return http.StatusConflict, "POSITION_UNKNOWN"
	case errors.Is(err, spatial.ErrMapDataMissing):
		return http.StatusNotFound, "TERMINAL_NOT_FOUND"
	case errors.Is(err, routing.ErrRouteNotFound):
		return http.StatusUnprocessableEntity, "ROUTE_NOT_FOUND"
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests, "SESSION_CAPACITY"
	default:
		return http.StatusInternalServerError, "START_FAILED"
	}
}
