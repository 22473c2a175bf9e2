// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/telemetry"
)

// RateLimit returns middleware that applies a global token-bucket limit.
// Position ingest dominates the request mix, so the limit should be sized
// for the fleet's aggregate update rate, not per client.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// RequestLogger returns middleware that logs one line per request.
// Websocket upgrades are skipped; their lifetime is logged by the stream
// handler instead.
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.IsWebsocket() {
			return
		}
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// RequestMetrics returns middleware that records request durations.
func RequestMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.RequestDuration.Record(c.Request.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("path", c.FullPath()),
				attribute.Int("status", c.Writer.Status()),
			))
	}
}
