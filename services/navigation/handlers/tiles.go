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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-systems/terminus/pkg/validation"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

// HandleTileArea handles GET /v1/tiles/:terminal/:floor.
//
// Description:
//
//	Returns the map tiles covering a bounding box on one floor. The box
//	comes from min_x/min_y/max_x/max_y query parameters; tiles missing
//	from the store (never generated) are skipped rather than failing the
//	whole query.
//
// Response:
//
//	200 OK: TileAreaResponse
//	400 Bad Request: Malformed floor or bounding box
//	404 Not Found: Unknown terminal or floor
func (h *Handlers) HandleTileArea(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleTileArea")

	terminal, err := validation.SanitizeTerminalID(c.Param("terminal"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	floor, err := strconv.Atoi(c.Param("floor"))
	if err != nil {
		badRequest(c, "floor must be an integer")
		return
	}

	area, err := bboxFromQuery(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	g, err := h.graphs.Get(terminal)
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TERMINAL_NOT_FOUND",
		})
		return
	}
	rect, ok := g.FloorRect(floor)
	if !ok {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: "unknown floor", Code: "FLOOR_NOT_FOUND",
		})
		return
	}

	grid := tiles.Grid{OriginX: rect.MinX, OriginY: rect.MinY, TileSize: h.tiles.TileSize()}
	found, err := h.tiles.TilesForArea(c.Request.Context(), terminal, floor, area, grid)
	if err != nil {
		log.Error("tile query failed", "terminal", terminal, "floor", floor, "error", err.Error())
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TILE_QUERY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, datatypes.TileAreaResponse{
		Terminal: terminal,
		Floor:    floor,
		Tiles:    found,
	})
}

// HandleGenerateTiles handles POST /v1/tiles/:terminal/generate.
//
// Description:
//
//	Regenerates the tile set for a terminal from its live routing graph,
//	for one floor when the body names one or for every floor otherwise.
//	Existing tiles for the affected floors are replaced.
//
// Response:
//
//	200 OK: GenerateTilesResponse
//	400 Bad Request: Malformed terminal id
//	404 Not Found: Unknown terminal
//	422 Unprocessable Entity: Floor exceeds the tile limit
func (h *Handlers) HandleGenerateTiles(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	log := h.log.With("request_id", requestID, "handler", "HandleGenerateTiles")

	terminal, err := validation.SanitizeTerminalID(c.Param("terminal"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var req datatypes.GenerateTilesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	g, err := h.graphs.Get(terminal)
	if err != nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TERMINAL_NOT_FOUND",
		})
		return
	}

	var written int
	if req.Floor != nil {
		written, err = h.tiles.GenerateFloor(c.Request.Context(), g, *req.Floor)
	} else {
		written, err = h.tiles.GenerateTerminal(c.Request.Context(), g)
	}
	if err != nil {
		if errors.Is(err, tiles.ErrTileLimitExceeded) {
			c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{
				Error: err.Error(), Code: "TILE_LIMIT_EXCEEDED",
			})
			return
		}
		log.Error("tile generation failed", "terminal", terminal, "error", err.Error())
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(), Code: "TILE_GENERATION_FAILED",
		})
		return
	}

	log.Info("tiles generated", "terminal", terminal, "written", written)
	c.JSON(http.StatusOK, datatypes.GenerateTilesResponse{
		Terminal:     terminal,
		TilesWritten: written,
	})
}

// bboxFromQuery parses the min_x/min_y/max_x/max_y query parameters.
func bboxFromQuery(c *gin.Context) (spatial.Rect, error) {
	var r spatial.Rect
	var err error
	read := func(name string) float64 {
		if err != nil {
			return 0
		}
		v, perr := strconv.ParseFloat(c.Query(name), 64)
		if perr != nil {
			err = errors.New("missing or malformed bounding box parameter " + name)
		}
		return v
	}
	r.MinX = read("min_x")
	r.MinY = read("min_y")
	r.MaxX = read("max_x")
	r.MaxY = read("max_y")
	if err != nil {
		return spatial.Rect{}, err
	}
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return spatial.Rect{}, errors.New("bounding box max must not be below min")
	}
	return r, nil
}
