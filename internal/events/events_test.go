/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package events

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMultiFansOut(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	sink := Multi{a, nil, b}

	sink.Record(Event{Kind: KindInfo, Message: "hello"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a.Events()), len(b.Events()))
	}
}

func TestMemoryConcurrentRecord(t *testing.T) {
	m := &Memory{}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(Event{Kind: KindTransition, Device: "R1"})
		}()
	}
	wg.Wait()
	if got := len(m.Filter(KindTransition, "R1")); got != 32 {
		t.Fatalf("expected 32 events, got %d", got)
	}
}

func TestStampFillsIDAndTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := Stamp(Event{Kind: KindInfo}, now)
	if e.ID == "" {
		t.Fatal("expected generated ID")
	}
	if !e.Time.Equal(now) {
		t.Fatalf("expected time %v, got %v", now, e.Time)
	}

	kept := Stamp(Event{ID: "fixed", Time: now.Add(time.Hour)}, now)
	if kept.ID != "fixed" || !kept.Time.Equal(now.Add(time.Hour)) {
		t.Fatalf("stamp overwrote existing fields: %+v", kept)
	}
}

func TestRecordUnknownDevice(t *testing.T) {
	m := &Memory{}
	RecordUnknownDevice(m, "run-1", "interfaces", "R9")

	got := m.Filter(KindUnknownDevice, "R9")
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	if got[0].RunID != "run-1" || got[0].Workflow != "interfaces" {
		t.Fatalf("unexpected event %+v", got[0])
	}
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	sink.Record(Event{Kind: KindFailure, Device: "R2", State: "connecting", Err: errors.New("timeout")})
	sink.Record(Event{Kind: KindUnknownDevice, Device: "R9"})
	sink.Record(Event{Kind: KindTransition, Device: "R1", State: "configuring"})
	sink.Record(Event{Kind: KindRunFinished, Message: "run finished", Fields: map[string]string{"failed": "1"}})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.DebugLevel, zapcore.InfoLevel}
	for i, lvl := range want {
		if entries[i].Level != lvl {
			t.Errorf("entry %d level = %v, want %v", i, entries[i].Level, lvl)
		}
	}
	if entries[0].ContextMap()["device"] != "R2" {
		t.Errorf("expected device field on failure entry, got %v", entries[0].ContextMap())
	}
	if entries[3].ContextMap()["failed"] != "1" {
		t.Errorf("expected custom field, got %v", entries[3].ContextMap())
	}
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "backup.log")
	logger, closeFn, err := NewLogger(path, "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("detail", zap.String("device", "R1"))
	logger.Error("boom", zap.String("device", "R2"))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "boom" || entry["device"] != "R2" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, _, err := NewLogger("", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
