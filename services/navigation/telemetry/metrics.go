// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry exposes the service's operational metrics through an
// OpenTelemetry meter backed by a Prometheus exporter, plus a JSONL audit
// sink for navigation events. Nothing here may block a session tick.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "terminus.navigation"

// Metrics bundles the service's instruments.
type Metrics struct {
	SessionsActive    metric.Int64UpDownCounter
	SessionTicks      metric.Int64Counter
	RouteComputations metric.Int64Counter
	RouteCacheHits    metric.Int64Counter
	TileCacheHits     metric.Int64Counter
	TileCacheMisses   metric.Int64Counter
	FusionUpdates     metric.Int64Counter
	PositioningLost   metric.Int64Counter
	Errors            metric.Int64Counter
	RequestDuration   metric.Float64Histogram
}

// TileCacheHit and TileCacheMiss adapt the tile store's cache signals onto
// the instruments.

func (m *Metrics) TileCacheHit(ctx context.Context) { m.TileCacheHits.Add(ctx, 1) }

func (m *Metrics) TileCacheMiss(ctx context.Context) { m.TileCacheMisses.Add(ctx, 1) }

// Provider owns the meter provider and the Prometheus registry backing it.
type Provider struct {
	Metrics  *Metrics
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	shutdownOnce sync.Once
}

// NewProvider builds a Prometheus-backed meter provider and registers every
// instrument. The exported metric names carry the terminus_ prefix via the
// meter namespace.
func NewProvider() (*Provider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace("terminus"),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName)

	m, err := newMetrics(meter)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return &Provider{
		Metrics:  m,
		provider: provider,
		registry: registry,
	}, nil
}

// Handler returns the /metrics HTTP handler for the provider's registry.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) {
	p.shutdownOnce.Do(func() {
		_ = p.provider.Shutdown(ctx)
	})
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.SessionsActive, err = meter.Int64UpDownCounter(
		"sessions_active",
		metric.WithDescription("Currently active navigation sessions"),
	); err != nil {
		return nil, err
	}
	if m.SessionTicks, err = meter.Int64Counter(
		"session_ticks_total",
		metric.WithDescription("Guidance ticks processed across all sessions"),
	); err != nil {
		return nil, err
	}
	if m.RouteComputations, err = meter.Int64Counter(
		"route_computations_total",
		metric.WithDescription("Route computations, cache misses only"),
	); err != nil {
		return nil, err
	}
	if m.RouteCacheHits, err = meter.Int64Counter(
		"route_cache_hits_total",
		metric.WithDescription("Route requests served from cache"),
	); err != nil {
		return nil, err
	}
	if m.TileCacheHits, err = meter.Int64Counter(
		"tile_cache_hits_total",
		metric.WithDescription("Tile reads served from the in-process cache"),
	); err != nil {
		return nil, err
	}
	if m.TileCacheMisses, err = meter.Int64Counter(
		"tile_cache_misses_total",
		metric.WithDescription("Tile reads that went to the store"),
	); err != nil {
		return nil, err
	}
	if m.FusionUpdates, err = meter.Int64Counter(
		"fusion_updates_total",
		metric.WithDescription("Beacon and SLAM updates ingested"),
	); err != nil {
		return nil, err
	}
	if m.PositioningLost, err = meter.Int64Counter(
		"positioning_lost_total",
		metric.WithDescription("Sustained positioning loss events"),
	); err != nil {
		return nil, err
	}
	if m.Errors, err = meter.Int64Counter(
		"errors_total",
		metric.WithDescription("Request failures by kind"),
	); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram(
		"request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}
