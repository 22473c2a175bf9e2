// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package navigation assembles the indoor wayfinding service: position
// fusion, accessible routing, map tiles, and live guidance sessions,
// fronted by the HTTP surface in the handlers package.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
	"github.com/wayfarer-systems/terminus/services/navigation/handlers"
	"github.com/wayfarer-systems/terminus/services/navigation/mapsource"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/session"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	badgerstore "github.com/wayfarer-systems/terminus/services/navigation/storage/badger"
	"github.com/wayfarer-systems/terminus/services/navigation/telemetry"
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// Service owns every component of the navigation stack and their
// lifecycles. Build with New, run with Run, release with Close.
type Service struct {
	cfg Config
	log *logging.Logger

	provider *telemetry.Provider
	audit    *telemetry.AuditSink
	graphs   *spatial.GraphStore
	fusion   *fusion.Engine
	routes   *routing.RouteCache
	db       *badgerstore.DB
	tiles    *tiles.Store
	sessions *session.Manager
	watcher  *mapsource.Watcher

	fusionStop context.CancelFunc
}

// New builds the service from its configuration. Floor plans are loaded
// eagerly; a terminal that fails to parse fails startup rather than going
// live with a partial map set.
func New(cfg Config, log *logging.Logger) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		log:    log,
		graphs: spatial.NewGraphStore(),
	}

	provider, err := telemetry.NewProvider()
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.provider = provider

	graphs, err := mapsource.LoadDir(cfg.FloorPlanDir)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("load floor plans: %w", err)
	}
	for _, g := range graphs {
		s.graphs.Swap(g)
	}
	log.Info("floor plans loaded", "terminals", len(graphs), "dir", cfg.FloorPlanDir)

	s.fusion = fusion.NewEngine(fusion.Config{}, storeFloorResolver{s.graphs}, log)
	fusionCtx, cancel := context.WithCancel(context.Background())
	s.fusionStop = cancel
	s.fusion.StartSweeper(fusionCtx)

	s.routes = routing.NewRouteCache(routing.DefaultCacheOptions())

	if cfg.TileDBPath != "" {
		dbCfg := badgerstore.DefaultConfig()
		dbCfg.Path = cfg.TileDBPath
		dbCfg.Logger = log.Slog()
		s.db, err = badgerstore.Open(dbCfg)
	} else {
		s.db, err = badgerstore.OpenInMemory()
	}
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("open tile store: %w", err)
	}

	tileOpts := tiles.DefaultStoreOptions()
	tileOpts.Logger = log.Slog()
	tileOpts.Metrics = provider.Metrics
	if cfg.Tiles.Size > 0 {
		tileOpts.TileSize = cfg.Tiles.Size
	}
	if cfg.Tiles.CacheEntries > 0 {
		tileOpts.CacheEntries = cfg.Tiles.CacheEntries
	}
	s.tiles = tiles.NewStore(s.db, tileOpts)

	var sinks fanoutSink
	if cfg.AuditLogPath != "" {
		s.audit, err = telemetry.NewAuditSink(cfg.AuditLogPath, 0)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("open audit sink: %w", err)
		}
		sinks = append(sinks, s.audit)
	}
	sinks = append(sinks, &metricsSink{m: provider.Metrics})

	s.sessions = session.NewManager(session.Config{
		MaxSessions:     cfg.Sessions.MaxSessions,
		DefaultUpdateHz: cfg.Sessions.DefaultUpdateHz,
	}, s.fusion, s.graphs, s.routes, logCollaborator{log}, sinks, log)
	s.sessions.StartSweeper()

	s.watcher, err = mapsource.NewWatcher(cfg.FloorPlanDir, s.onFloorPlanReload, log)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("watch floor plans: %w", err)
	}

	return s, nil
}

// Run generates tiles for the loaded terminals, starts the HTTP server,
// and blocks until ctx is cancelled or the server fails.
func (s *Service) Run(ctx context.Context) error {
	for _, terminal := range s.graphs.Terminals() {
		g, err := s.graphs.Get(terminal)
		if err != nil {
			continue
		}
		n, err := s.tiles.GenerateTerminal(ctx, g)
		if err != nil {
			return fmt.Errorf("generate tiles for %s: %w", terminal, err)
		}
		s.log.Info("tiles ready", "terminal", terminal, "tiles", n)
	}

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("navigation service listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", "error", err.Error())
		}
		s.cleanup()
		return nil
	case err := <-errCh:
		s.cleanup()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases every component. Safe to call after a failed New.
func (s *Service) Close() {
	s.cleanup()
}

func (s *Service) router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handlers.NewHandlers(s.sessions, s.fusion, s.graphs, s.routes, s.tiles,
		s.provider.Metrics, s.log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestLogger(s.log))
	router.Use(handlers.RequestMetrics(s.provider.Metrics))

	router.GET("/healthz", h.HandleHealth)
	router.GET("/readyz", h.HandleReady)
	router.GET("/metrics", gin.WrapH(s.provider.Handler()))

	v1 := router.Group("/v1")
	v1.Use(handlers.RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	handlers.RegisterRoutes(v1, h)
	return router
}

// onFloorPlanReload swaps in a freshly parsed graph, drops the terminal's
// cached routes, and regenerates its tiles in the background. Sessions in
// flight keep their already planned routes.
func (s *Service) onFloorPlanReload(g *spatial.RoutingGraph) {
	s.graphs.Swap(g)
	s.routes.InvalidateTerminal(g.Terminal)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.tiles.GenerateTerminal(ctx, g); err != nil {
			s.log.Error("tile regeneration failed", "terminal", g.Terminal, "error", err.Error())
		}
	}()
}

func (s *Service) cleanup() {
	if s.watcher != nil {
		_ = s.watcher.Close()
		s.watcher = nil
	}
	if s.sessions != nil {
		s.sessions.Close()
		s.sessions = nil
	}
	if s.fusionStop != nil {
		s.fusionStop()
		s.fusionStop = nil
	}
	if s.fusion != nil {
		s.fusion.Stop()
		s.fusion = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	if s.audit != nil {
		_ = s.audit.Close()
		s.audit = nil
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.provider.Shutdown(ctx)
		cancel()
		s.provider = nil
	}
}

// storeFloorResolver resolves a z coordinate against every loaded
// terminal. Terminals in one deployment share a physical site, so their
// floor bands agree.
type storeFloorResolver struct {
	graphs *spatial.GraphStore
}

func (r storeFloorResolver) FloorForZ(z float64) (int, bool) {
	for _, terminal := range r.graphs.Terminals() {
		g, err := r.graphs.Get(terminal)
		if err != nil {
			continue
		}
		if floor, ok := g.FloorForZ(z); ok {
			return floor, true
		}
	}
	return 0, false
}

// metricsSink feeds session events into the telemetry instruments. The
// sessions_active decrement lives here so sessions that complete or error
// out on their own are counted the same as client-stopped ones.
type metricsSink struct {
	m *telemetry.Metrics
}

func (s *metricsSink) Publish(e session.Event) {
	ctx := context.Background()
	switch e.Type {
	case session.EventUpdate:
		s.m.SessionTicks.Add(ctx, 1)
	case session.EventPositioningLost:
		s.m.PositioningLost.Add(ctx, 1)
	case session.EventCompleted, session.EventCancelled:
		s.m.SessionsActive.Add(ctx, -1)
	case session.EventError:
		s.m.Errors.Add(ctx, 1)
		s.m.SessionsActive.Add(ctx, -1)
	}
}

// fanoutSink delivers each event to every sink in order. Sinks must not
// block.
type fanoutSink []session.EventSink

func (f fanoutSink) Publish(e session.Event) {
	for _, sink := range f {
		sink.Publish(e)
	}
}

// logCollaborator is the AR renderer integration point. Until a renderer
// transport lands it records rendering hand-offs in the service log; AR
// clients render from the websocket event stream instead.
type logCollaborator struct {
	log *logging.Logger
}

func (c logCollaborator) CreateArrow(sessionID string) error {
	c.log.Debug("ar arrow created", "session_id", sessionID)
	return nil
}

func (c logCollaborator) UpdateArrowTarget(sessionID string, target routing.Waypoint) error {
	return nil
}

func (c logCollaborator) CreateNavigationOverlay(sessionID string, route *routing.Route) error {
	c.log.Debug("ar overlay created", "session_id", sessionID, "waypoints", len(route.Waypoints))
	return nil
}

func (c logCollaborator) UpdateNavigationOverlay(sessionID string, update session.NavigationUpdate) error {
	return nil
}

func (c logCollaborator) AddBreadcrumb(sessionID string, pos spatial.Position) error {
	return nil
}

func (c logCollaborator) UpdateFloor(sessionID string, floor int) error {
	c.log.Debug("ar floor changed", "session_id", sessionID, "floor", floor)
	return nil
}

func (c logCollaborator) Cleanup(sessionID string) error {
	c.log.Debug("ar session cleaned up", "session_id", sessionID)
	return nil
}
