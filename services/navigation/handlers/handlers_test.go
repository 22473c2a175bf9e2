// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/datatypes"
	"github.com/wayfarer-systems/terminus/services/navigation/fusion"
	"github.com/wayfarer-systems/terminus/services/navigation/routing"
	"github.com/wayfarer-systems/terminus/services/navigation/session"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
	badgerstore "github.com/wayfarer-systems/terminus/services/navigation/storage/badger"
	"github.com/wayfarer-systems/terminus/services/navigation/tiles"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	graphs   *spatial.GraphStore
	fusion   *fusion.Engine
	sessions *session.Manager
	tiles    *tiles.Store
}

func concourseGraph(t *testing.T) *spatial.RoutingGraph {
	t.Helper()
	nodes := []spatial.Node{
		{ID: "a", X: 0, Y: 0, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "b", X: 10, Y: 0, Floor: 1, Type: spatial.NodeCorridor},
		{ID: "gate-a4", X: 20, Y: 0, Floor: 1, Type: spatial.NodePOI, Name: "Gate A4"},
	}
	edges := []spatial.Edge{
		{From: "a", To: "b", Type: spatial.EdgeCorridor, DistanceMeters: 10, IsAccessible: true},
		{From: "b", To: "gate-a4", Type: spatial.EdgeCorridor, DistanceMeters: 10, IsAccessible: true},
	}
	floors := []spatial.FloorBounds{{Floor: 1, MinZ: 0, MaxZ: 4.5}}
	g, err := spatial.NewRoutingGraph("SEA-A", 1, nodes, edges, floors)
	require.NoError(t, err)
	return g
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logging.New(logging.Config{Service: "navigation-test", Quiet: true})
	t.Cleanup(func() { log.Close() })

	graphs := spatial.NewGraphStore()
	graphs.Swap(concourseGraph(t))

	g, err := graphs.Get("SEA-A")
	require.NoError(t, err)

	engine := fusion.NewEngine(fusion.Config{}, g, log)
	t.Cleanup(engine.Stop)

	routeCache := routing.NewRouteCache(routing.DefaultCacheOptions())

	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tileStore := tiles.NewStore(db, tiles.DefaultStoreOptions())

	sessions := session.NewManager(session.Config{}, engine, graphs, routeCache, nil, nil, log)
	t.Cleanup(sessions.Close)

	h := NewHandlers(sessions, engine, graphs, routeCache, tileStore, nil, log)
	router := gin.New()
	router.GET("/healthz", h.HandleHealth)
	router.GET("/readyz", h.HandleReady)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)

	return &testEnv{
		router:   router,
		graphs:   graphs,
		fusion:   engine,
		sessions: sessions,
		tiles:    tileStore,
	}
}

// positionUser pushes three fresh beacon readings so the fused estimate
// lands near the given point.
func positionUser(t *testing.T, env *testEnv, userID string, x, y float64) {
	t.Helper()
	now := time.Now()
	offsets := [][2]float64{{1, 0}, {-1, 0}, {0, 1}}
	for i, off := range offsets {
		require.NoError(t, env.fusion.UpdateBeacon(userID, fusion.BeaconReading{
			BeaconID: fmt.Sprintf("bcn-%d", i),
			RSSI:     -50,
			X:        x + off[0],
			Y:        y + off[1],
			Z:        1,
			LastSeen: now,
		}))
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := doJSON(t, env.router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ServiceVersion)
}

func TestHandleReady(t *testing.T) {
	env := newTestEnv(t)
	w := doJSON(t, env.router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SEA-A")

	env.graphs.Remove("SEA-A")
	w = doJSON(t, env.router, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleComputeRoute(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/v1/routes/compute", datatypes.ComputeRouteRequest{
		Terminal: "SEA-A", Start: "a", End: "gate-a4",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.ComputeRouteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Route)
	require.Len(t, resp.Route.Waypoints, 3)
	assert.Equal(t, "gate-a4", resp.Route.Waypoints[2].NodeID)
	assert.InDelta(t, 20.0, resp.Route.TotalDistance, 1e-9)
}

func TestHandleComputeRoute_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/v1/routes/compute", datatypes.ComputeRouteRequest{
		Terminal: "LAX-9", Start: "a", End: "gate-a4",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/routes/compute", datatypes.ComputeRouteRequest{
		Terminal: "SEA-A", Start: "a", End: "ghost",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Missing required fields.
	w = doJSON(t, env.router, http.MethodPost, "/v1/routes/compute", map[string]string{"terminal": "SEA-A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleValidateRoute(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/v1/routes/validate", datatypes.ValidateRouteRequest{
		Terminal: "SEA-A", NodeIDs: []string{"a", "b", "gate-a4"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ValidateRouteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)

	// No edge a -> gate-a4.
	w = doJSON(t, env.router, http.MethodPost, "/v1/routes/validate", datatypes.ValidateRouteRequest{
		Terminal: "SEA-A", NodeIDs: []string{"a", "gate-a4"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Reason)
}

func TestHandlePosition(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/v1/position/beacons", datatypes.BeaconUpdateRequest{
		UserID: "u1",
		Beacons: []datatypes.BeaconObservation{
			{BeaconID: "bcn-0", RSSI: -50, X: 1, Y: 0, Z: 1},
			{BeaconID: "bcn-1", RSSI: -50, X: -1, Y: 0, Z: 1},
			{BeaconID: "bcn-2", RSSI: -50, X: 0, Y: 1, Z: 1},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = doJSON(t, env.router, http.MethodGet, "/v1/position/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.PositionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 0, resp.Position.X, 1.0)
	assert.Equal(t, 1, resp.Position.Floor)
	assert.Greater(t, resp.Confidence, 0.0)

	// Unknown user has no fresh data.
	w = doJSON(t, env.router, http.MethodGet, "/v1/position/ghost", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Positive RSSI fails validation.
	w = doJSON(t, env.router, http.MethodPost, "/v1/position/beacons", datatypes.BeaconUpdateRequest{
		UserID:  "u1",
		Beacons: []datatypes.BeaconObservation{{BeaconID: "bcn-0", RSSI: 10, X: 1, Y: 0, Z: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleInvalidIdentifiers(t *testing.T) {
	env := newTestEnv(t)

	// IDs end up in store keys and log attributes; path-like or otherwise
	// malformed ones are rejected at the boundary.
	w := doJSON(t, env.router, http.MethodPost, "/v1/position/beacons", datatypes.BeaconUpdateRequest{
		UserID:  "../etc",
		Beacons: []datatypes.BeaconObservation{{BeaconID: "bcn-0", RSSI: -50, X: 1, Y: 0, Z: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/position/beacons", datatypes.BeaconUpdateRequest{
		UserID:  "u1",
		Beacons: []datatypes.BeaconObservation{{BeaconID: "bcn/0", RSSI: -50, X: 1, Y: 0, Z: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/position/slam", datatypes.SLAMUpdateRequest{
		UserID: "u 1", X: 1, Y: 1, Z: 1, Confidence: 0.5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.router, http.MethodGet, "/v1/position/bad!id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u/1", Terminal: "SEA-A", Destination: "gate-a4",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.router, http.MethodGet,
		"/v1/tiles/SEA%20A/1?min_x=0&min_y=0&max_x=1&max_y=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStartNavigation(t *testing.T) {
	env := newTestEnv(t)
	positionUser(t, env, "u1", 0, 0)

	w := doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u1", Terminal: "SEA-A", Destination: "gate-a4", Mode: "ar",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp datatypes.StartNavigationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, session.StatusActive, resp.Session.Status)
	require.NotNil(t, resp.Session.Route)
	assert.Len(t, resp.Session.Route.Waypoints, 3)

	// Status round trip.
	w = doJSON(t, env.router, http.MethodGet, "/v1/navigation/"+resp.Session.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Stop, then the session is gone.
	w = doJSON(t, env.router, http.MethodPost, "/v1/navigation/"+resp.Session.ID+"/stop",
		datatypes.StopNavigationRequest{Reason: "user cancelled"})
	require.Equal(t, http.StatusOK, w.Code)
	var stopped datatypes.SessionStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, session.StatusCancelled, stopped.Session.Status)

	w = doJSON(t, env.router, http.MethodGet, "/v1/navigation/"+resp.Session.ID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStartNavigation_Errors(t *testing.T) {
	env := newTestEnv(t)

	// User never sent position data.
	w := doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "lost", Terminal: "SEA-A", Destination: "gate-a4",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	positionUser(t, env, "u1", 0, 0)

	w = doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u1", Terminal: "LAX-9", Destination: "gate-a4",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u1", Terminal: "SEA-A", Destination: "ghost",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u1", Terminal: "SEA-A", Destination: "gate-a4", Mode: "hologram",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTiles(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router, http.MethodPost, "/v1/tiles/SEA-A/generate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var gen datatypes.GenerateTilesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gen))
	assert.Greater(t, gen.TilesWritten, 0)

	w = doJSON(t, env.router, http.MethodGet,
		"/v1/tiles/SEA-A/1?min_x=-5&min_y=-5&max_x=25&max_y=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var area datatypes.TileAreaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &area))
	require.NotEmpty(t, area.Tiles)
	assert.Equal(t, "SEA-A", area.Tiles[0].Terminal)

	// Malformed bounding box.
	w = doJSON(t, env.router, http.MethodGet, "/v1/tiles/SEA-A/1?min_x=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown floor.
	w = doJSON(t, env.router, http.MethodGet,
		"/v1/tiles/SEA-A/9?min_x=0&min_y=0&max_x=1&max_y=1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSessionStream(t *testing.T) {
	env := newTestEnv(t)
	positionUser(t, env, "u1", 0, 0)

	w := doJSON(t, env.router, http.MethodPost, "/v1/navigation/start", datatypes.StartNavigationRequest{
		UserID: "u1", Terminal: "SEA-A", Destination: "gate-a4",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp datatypes.StartNavigationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/navigation/" + resp.Session.ID + "/stream"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Stop from the HTTP side; the stream must deliver the cancellation
	// and then close.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = env.sessions.Stop(resp.Session.ID, "user cancelled")
	}()

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e session.Event
		if err := ws.ReadJSON(&e); err != nil {
			t.Fatalf("stream closed before cancellation event: %v", err)
		}
		if e.Type == session.EventCancelled {
			break
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RateLimit(1, 1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
