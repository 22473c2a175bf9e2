// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mapsource

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wayfarer-systems/terminus/pkg/logging"
	"github.com/wayfarer-systems/terminus/services/navigation/spatial"
)

// debounceWindow coalesces the write bursts editors and rsync produce into
// one reload per file.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads floor plans when their files change and hands each fresh
// graph to the reload callback. A file that fails to parse keeps the
// previous graph live and logs the failure.
type Watcher struct {
	dir      string
	onReload func(*spatial.RoutingGraph)
	log      *logging.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher starts watching a floor-plan directory. onReload runs on the
// watcher goroutine; it should hand off heavy work (tile regeneration)
// rather than doing it inline.
func NewWatcher(dir string, onReload func(*spatial.RoutingGraph), log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create floor plan watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch floor plan directory %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		onReload: onReload,
		log:      log,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isFloorPlanFile(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("floor plan watcher error", "error", err.Error())
			}

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < debounceWindow {
					continue
				}
				delete(pending, path)
				w.reload(path)
			}
		}
	}
}

func (w *Watcher) reload(path string) {
	g, err := LoadFile(path)
	if err != nil {
		// Keep the previous graph live; a broken upload must not take
		// down routing for the terminal.
		if w.log != nil {
			w.log.Error("floor plan reload failed", "path", path, "error", err.Error())
		}
		return
	}

	if w.log != nil {
		w.log.Info("floor plan reloaded",
			"terminal", g.Terminal,
			"version", g.Version,
			"nodes", len(g.Nodes()))
	}
	w.onReload(g)
}
