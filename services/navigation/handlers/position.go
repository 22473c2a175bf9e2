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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-systems/terminus/pkg/validation"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
)

// HandlePositionBeacons handles POST /v1/position/beacons.
//
// Description:
//
//	Ingests one beacon scan batch for a user. Each observation updates
//	the user's beacon set; stale readings age out on the engine side.
//
// Response:
//
//	202 Accepted
//	400 Bad Request: Validation error
//	429 Too Many Requests: Fusion state registry at capacity
func (h *Handlers) HandlePositionBeacons(c *gin.Context) {
	getOrCreateRequestID(c)

	var req datatypes.BeaconUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	// IDs become fusion registry keys and log attributes; reject crafted
	// ones before they reach the engine.
	if err := validation.ValidateUserID(req.UserID); err != nil {
		badRequest(c, err.Error())
		return
	}
	for _, b := range req.Beacons {
		if err := validation.ValidateBeaconID(b.BeaconID); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	now := time.Now()
	for _, b := range req.Beacons {
		err := h.fusion.UpdateBeacon(req.UserID, fusion.BeaconReading{
			BeaconID:         b.BeaconID,
			RSSI:             b.RSSI,
			MeasuredDistance: b.MeasuredDistance,
			X:                b.X,
			Y:                b.Y,
			Z:                b.Z,
			LastSeen:         now,
		})
		if err != nil {
			if errors.Is(err, fusion.ErrTooManyUsers) {
				c.JSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
					Error: err.Error(), Code: "FUSION_CAPACITY",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: err.Error(), Code: "BEACON_UPDATE_FAILED",
			})
			return
		}
	}

	if h.metrics != nil {
		h.metrics.FusionUpdates.Add(c.Request.Context(), int64(len(req.Beacons)))
	}
	c.Status(http.StatusAccepted)
}

// HandlePositionSLAM handles POST /v1/position/slam.
//
// Response:
//
//	202 Accepted
//	400 Bad Request: Validation error
//	429 Too Many Requests: Fusion state registry at capacity
func (h *Handlers) HandlePositionSLAM(c *gin.Context) {
	getOrCreateRequestID(c)

	var req datatypes.SLAMUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := validation.ValidateUserID(req.UserID); err != nil {
		badRequest(c, err.Error())
		return
	}

	err := h.fusion.UpdateSLAM(req.UserID, fusion.SLAMPose{
		X:          req.X,
		Y:          req.Y,
		Z:          req.Z,
		Confidence: req.Confidence,
		Timestamp:  time.Now(),
	})
	if err != nil {
		if errors.Is(err, fusion.ErrTooManyUsers) {
			c.JSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: err.Error(), Code: "FUSION_CAPACITY",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
			Error: err.Error(), Code: "SLAM_UPDATE_FAILED",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.FusionUpdates.Add(c.Request.Context(), 1)
	}
	c.Status(http.StatusAccepted)
}

// HandleGetPosition handles GET /v1/position/:user_id.
//
// Description:
//
//	Returns the current fused position estimate for a user. A user with
//	no fresh beacon or SLAM data gets 409 rather than a stale guess.
//
// Response:
//
//	200 OK: PositionResponse
//	400 Bad Request: Malformed user id
//	409 Conflict: Positioning lost
func (h *Handlers) HandleGetPosition(c *gin.Context) {
	getOrCreateRequestID(c)
	userID := c.Param("user_id")
	if err := validation.ValidateUserID(userID); err != nil {
		badRequest(c, err.Error())
		return
	}

	pos, confidence, err := h.fusion.Estimate(userID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.PositioningLost.Add(c.Request.Context(), 1)
		}
		c.JSON(http.StatusConflict, datatypes.ErrorResponse{
			Error: err.Error(), Code: "POSITIONING_LOST",
		})
		return
	}

	c.JSON(http.StatusOK, datatypes.PositionResponse{
		Position:   pos,
		Confidence: confidence,
	})
}
