// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package navigation

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/pkg/logging"
)

const testPlan = `
terminal: SEA-A
version: 1
floors:
  - floor: 1
    min_z: 0
    max_z: 4.5
nodes:
  - id: gate-a1
    x: 0
    y: 0
    floor: 1
    type: corridor
  - id: gate-a4
    x: 30
    y: 0
    floor: 1
    type: poi
    name: Gate A4
edges:
  - from: gate-a1
    to: gate-a4
    type: corridor
    distance_meters: 30
    is_accessible: true
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	// Missing file still yields defaults.
	cfg, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "./floorplans", cfg.FloorPlanDir)
	assert.Equal(t, 500.0, cfg.RateLimitRPS)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
floor_plan_dir: /maps
sessions:
  max_sessions: 100
tiles:
  size: 10
`), 0644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/maps", cfg.FloorPlanDir)
	assert.Equal(t, 100, cfg.Sessions.MaxSessions)
	assert.Equal(t, 10.0, cfg.Tiles.Size)

	// Environment wins over the file.
	t.Setenv("TERMINUS_LISTEN_ADDR", ":7070")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: ["), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sea-a.yaml"), []byte(testPlan), 0644))

	cfg := Config{FloorPlanDir: dir}
	cfg.applyDefaults()

	log := logging.New(logging.Config{Service: "navigation-test", Quiet: true})
	t.Cleanup(func() { log.Close() })

	s, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNew_LoadsFloorPlans(t *testing.T) {
	s := newTestService(t)
	assert.Equal(t, []string{"SEA-A"}, s.graphs.Terminals())

	g, err := s.graphs.Get("SEA-A")
	require.NoError(t, err)
	assert.Len(t, g.Nodes(), 2)
}

func TestNew_FailsOnBrokenFloorPlan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("terminal: ["), 0644))

	cfg := Config{FloorPlanDir: dir}
	cfg.applyDefaults()
	log := logging.New(logging.Config{Service: "navigation-test", Quiet: true})
	defer log.Close()

	_, err := New(cfg, log)
	assert.Error(t, err)
}

func TestRouter_Smoke(t *testing.T) {
	s := newTestService(t)
	router := s.router()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
