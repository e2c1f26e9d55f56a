/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package events carries the run observability stream. The orchestrator
// emits one Event per device state transition and per failure; sinks turn
// them into log lines, history rows and metrics.
//
// Event lifecycle: emitted → fanned out by Multi → consumed by each sink.
// Sinks must be safe for concurrent use; workers record from many goroutines.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	KindRunStarted    Kind = "run_started"
	KindRunFinished   Kind = "run_finished"
	KindTransition    Kind = "transition"
	KindFailure       Kind = "failure"
	KindDeviceDone    Kind = "device_done"
	KindStep          Kind = "step"
	KindVerify        Kind = "verify"
	KindArtifact      Kind = "artifact"
	KindUnknownDevice Kind = "unknown_device"
	KindInfo          Kind = "info"
)

// Event is a single observation from a run.
type Event struct {
	ID       string
	RunID    string
	Time     time.Time
	Kind     Kind
	Workflow string
	Device   string
	// State is the device state entered, for transitions, or the state the
	// failure happened in.
	State    string
	Message  string
	Err      error
	Duration time.Duration
	Fields   map[string]string
}

// Sink consumes events.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Record implements Sink.
func (f SinkFunc) Record(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every sink in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}

// Stamp fills the ID and Time of an event when unset.
func Stamp(e Event, now time.Time) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = now
	}
	return e
}

// RecordUnknownDevice reports a declarative entry that names a device the
// inventory does not contain. The entry is skipped, never fatal.
func RecordUnknownDevice(sink Sink, runID, workflow, device string) {
	sink.Record(Stamp(Event{
		RunID:    runID,
		Kind:     KindUnknownDevice,
		Workflow: workflow,
		Device:   device,
		Message:  "device not found in inventory, skipping",
	}, time.Now().UTC()))
}

// Memory keeps every event it receives. Useful in tests and for the console
// summary.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Sink.
func (m *Memory) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Filter returns the recorded events of one kind, optionally limited to a
// device when device is non-empty.
func (m *Memory) Filter(kind Kind, device string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind != kind {
			continue
		}
		if device != "" && e.Device != device {
			continue
		}
		out = append(out, e)
	}
	return out
}
