// Copyright (C) 2026 Wayfarer Systems (eng@wayfarer.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/wayfarer-systems/terminus/services/navigation/session"
)

// AuditSink appends navigation events to a JSONL file through a buffered
// channel and a single writer goroutine.
//
// Publish is fire-and-forget: when the buffer is full the event is dropped
// and counted, never blocking the caller. Guidance correctness does not
// depend on the audit trail.
type AuditSink struct {
	events  chan session.Event
	file    *os.File
	dropped int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAuditSink opens (or creates) the audit file and starts the writer.
func NewAuditSink(path string, buffer int) (*AuditSink, error) {
	if buffer <= 0 {
		buffer = 1024
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}

	s := &AuditSink{
		events: make(chan session.Event, buffer),
		file:   f,
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// Publish enqueues an event, dropping it when the buffer is full.
func (s *AuditSink) Publish(e session.Event) {
	select {
	case s.events <- e:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (s *AuditSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close drains pending events and closes the file.
func (s *AuditSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.events)
		<-s.done
	})
	return s.file.Close()
}

func (s *AuditSink) writeLoop() {
	defer close(s.done)
	enc := json.NewEncoder(s.file)
	for e := range s.events {
		// Encode errors are swallowed: a bad audit line must not take
		// down the writer for subsequent events.
		_ = enc.Encode(e)
	}
}
