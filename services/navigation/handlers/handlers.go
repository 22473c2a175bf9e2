// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the navigation service:
// session lifecycle, the websocket guidance stream, route computation,
// position ingest, and tile queries.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/session"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	"github.com/wayfarer-systems/terminus/services/navigation/telemetry"
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// Handlers holds the service components the HTTP surface fronts.
type Handlers struct {
	sessions *session.Manager
	fusion   *fusion.Engine
	graphs   *spatial.GraphStore
	routes   *routing.RouteCache
	tiles    *tiles.Store
	metrics  *telemetry.Metrics
	log      *logging.Logger
}

// NewHandlers wires the handlers to the service components. metrics may be
// nil; instrument increments are skipped when it is.
func NewHandlers(sessions *session.Manager, fusionEngine *fusion.Engine, graphs *spatial.GraphStore,
	routes *routing.RouteCache, tileStore *tiles.Store, metrics *telemetry.Metrics, log *logging.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		fusion:   fusionEngine,
		graphs:   graphs,
		routes:   routes,
		tiles:    tileStore,
		metrics:  metrics,
		log:      log,
	}
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": ServiceVersion,
	})
}

// HandleReady handles GET /readyz. Ready means at least one terminal's
// floor plan is loaded; before that every routing request would 404.
func (h *Handlers) HandleReady(c *gin.Context) {
	terminals := h.graphs.Terminals()
	if len(terminals) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "no terminals loaded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"terminals": terminals,
	})
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
		Error: msg,
		Code:  "INVALID_REQUEST",
	})
}
