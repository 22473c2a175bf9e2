// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-systems/terminus/services/navigation/session"
)

func TestAuditSink_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.jsonl")
	sink, err := NewAuditSink(path, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sink.Publish(session.Event{
			Type:      session.EventUpdate,
			SessionID: "s1",
			Timestamp: time.Now(),
		})
	}
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e session.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		assert.Equal(t, session.EventUpdate, e.Type)
		assert.Equal(t, "s1", e.SessionID)
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestAuditSink_DropsOnBackpressure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, err := NewAuditSink(path, 1)
	require.NoError(t, err)
	defer sink.Close()

	// Flood far past the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			sink.Publish(session.Event{Type: session.EventUpdate, SessionID: "s1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked under backpressure")
	}
}

func TestProvider_RegistersInstruments(t *testing.T) {
	p, err := NewProvider()
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	require.NotNil(t, p.Metrics)
	assert.NotNil(t, p.Metrics.SessionsActive)
	assert.NotNil(t, p.Metrics.RouteComputations)
	assert.NotNil(t, p.Handler())
}
