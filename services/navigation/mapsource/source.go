// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mapsource loads terminal floor plans from YAML files and watches
// them for changes. A reload builds a fresh routing graph off to the side
// and hands it to the caller; the live graph is never mutated in place.
package mapsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wayfarer-systems/terminus/pkg/validation"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// FloorPlan is the on-disk YAML schema for one terminal.
type FloorPlan struct {
	Terminal string                `yaml:"terminal"`
	Version  int64                 `yaml:"version"`
	Floors   []spatial.FloorBounds `yaml:"floors"`
	Nodes    []spatial.Node        `yaml:"nodes"`
	Edges    []spatial.Edge        `yaml:"edges"`
}

// LoadFile parses one terminal floor plan and builds its routing graph.
func LoadFile(path string) (*spatial.RoutingGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read floor plan %s: %w", path, err)
	}

	var plan FloorPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse floor plan %s: %w", path, err)
	}
	if err := validation.ValidateTerminalID(plan.Terminal); err != nil {
		return nil, fmt.Errorf("floor plan %s: %w", path, err)
	}
	if len(plan.Floors) == 0 {
		return nil, fmt.Errorf("floor plan %s: no floors declared", path)
	}
	for _, n := range plan.Nodes {
		if err := validation.ValidateNodeID(n.ID); err != nil {
			return nil, fmt.Errorf("floor plan %s: %w", path, err)
		}
	}

	g, err := spatial.NewRoutingGraph(plan.Terminal, plan.Version, plan.Nodes, plan.Edges, plan.Floors)
	if err != nil {
		return nil, fmt.Errorf("floor plan %s: %w", path, err)
	}
	return g, nil
}

// LoadDir loads every *.yaml floor plan in a directory, sorted by file
// name. A single bad file fails the whole load so a partial terminal set
// never goes live.
func LoadDir(dir string) ([]*spatial.RoutingGraph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read floor plan directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isFloorPlanFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	graphs := make([]*spatial.RoutingGraph, 0, len(paths))
	for _, p := range paths {
		g, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func isFloorPlanFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
