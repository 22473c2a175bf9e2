// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all navigation routes with the router.
//
// Description:
//
//	Registers all /v1/* endpoints with the given Gin router group. The
//	router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	h - The handlers instance
//
// Session Endpoints:
//
//	POST /v1/navigation/start - Start a navigation session
//	POST /v1/navigation/:id/stop - Stop a session
//	GET  /v1/navigation/:id/status - Session snapshot
//	GET  /v1/navigation/:id/stream - Websocket guidance stream
//
// Routing Endpoints:
//
//	POST /v1/routes/compute - Compute an accessible route
//	POST /v1/routes/validate - Validate a proposed node sequence
//
// Position Endpoints:
//
//	POST /v1/position/beacons - Ingest a beacon scan batch
//	POST /v1/position/slam - Ingest a visual-tracker pose
//	GET  /v1/position/:user_id - Current fused position
//
// Tile Endpoints:
//
//	GET  /v1/tiles/:terminal/:floor - Tiles covering a bounding box
//	POST /v1/tiles/:terminal/generate - Regenerate a terminal's tiles
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	navigation := rg.Group("/navigation")
	{
		navigation.POST("/start", h.HandleStartNavigation)
		navigation.POST("/:id/stop", h.HandleStopNavigation)
		navigation.GET("/:id/status", h.HandleSessionStatus)
		navigation.GET("/:id/stream", h.HandleSessionStream)
	}

	routes := rg.Group("/routes")
	{
		routes.POST("/compute", h.HandleComputeRoute)
		routes.POST("/validate", h.HandleValidateRoute)
	}

	position := rg.Group("/position")
	{
		position.POST("/beacons", h.HandlePositionBeacons)
		position.POST("/slam", h.HandlePositionSLAM)
		position.GET("/:user_id", h.HandleGetPosition)
	}

	tiles := rg.Group("/tiles")
	{
		tiles.GET("/:terminal/:floor", h.HandleTileArea)
		tiles.POST("/:terminal/generate", h.HandleGenerateTiles)
	}
}
