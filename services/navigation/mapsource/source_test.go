// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mapsource

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

const validPlan = `
terminal: SEA-A
version: 3
floors:
  - floor: 1
    min_z: 0
    max_z: 4.5
  - floor: 2
    min_z: 4.5
    max_z: 9
nodes:
  - id: gate-a1
    x: 0
    y: 0
    floor: 1
    type: corridor
  - id: lift-1
    x: 10
    y: 0
    floor: 1
    type: elevator
  - id: lift-1-up
    x: 10
    y: 0
    floor: 2
    type: elevator
edges:
  - from: gate-a1
    to: lift-1
    type: corridor
    distance_meters: 10
    is_accessible: true
  - from: lift-1
    to: lift-1-up
    type: elevator
    distance_meters: 4.5
    floor_change: true
    is_accessible: true
`

func writePlan(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writePlan(t, dir, "sea-a.yaml", validPlan)

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SEA-A", g.Terminal)
	assert.Equal(t, int64(3), g.Version)
	assert.Len(t, g.Nodes(), 3)

	floor, ok := g.FloorForZ(4.6)
	require.True(t, ok)
	assert.Equal(t, 2, floor)
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "terminal: [unclosed"},
		{"missing terminal", "version: 1\nfloors: [{floor: 1, min_z: 0, max_z: 4}]"},
		{"no floors", "terminal: SEA-A\nversion: 1"},
		{"dangling edge", `
terminal: SEA-A
version: 1
floors: [{floor: 1, min_z: 0, max_z: 4}]
nodes: [{id: a, x: 0, y: 0, floor: 1, type: corridor}]
edges: [{from: a, to: ghost, type: corridor, distance_meters: 5}]
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writePlan(t, dir, "bad.yaml", tc.content)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "sea-a.yaml", validPlan)
	writePlan(t, dir, "notes.txt", "not a plan")

	graphs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Equal(t, "SEA-A", graphs[0].Terminal)

	// One broken plan fails the whole directory load.
	writePlan(t, dir, "sea-b.yaml", "terminal: [")
	_, err = LoadDir(dir)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "sea-a.yaml", validPlan)

	var mu sync.Mutex
	var reloaded []*spatial.RoutingGraph
	w, err := NewWatcher(dir, func(g *spatial.RoutingGraph) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, g)
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	// Bump the version and rewrite.
	writePlan(t, dir, "sea-a.yaml", "# updated\n"+validPlan)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "SEA-A", reloaded[0].Terminal)
	mu.Unlock()
}

func TestWatcher_BrokenFileKeepsPreviousGraph(t *testing.T) {
	dir := t.TempDir()
	writePlan(t, dir, "sea-a.yaml", validPlan)

	var mu sync.Mutex
	count := 0
	w, err := NewWatcher(dir, func(g *spatial.RoutingGraph) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	writePlan(t, dir, "sea-a.yaml", "terminal: [broken")
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, count, "broken plan must not trigger a reload callback")
	mu.Unlock()
}
