/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for fleet runs.
//
// All metrics are registered with the package Registry. A run can export
// them in the text exposition format for the node_exporter textfile
// collector, since the CLI is short lived and never serves /metrics.
//
// Metric naming follows Prometheus conventions:
//   - netauto_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/madupadilshan/Network-Automation/internal/events"
)

// Registry holds every netauto metric.
var Registry = prometheus.NewRegistry()

var (
	// RunsTotal counts runs by workflow and result.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netauto_runs_total",
			Help: "Total number of fleet runs by workflow and result.",
		},
		[]string{"workflow", "result"},
	)

	// RunDurationSeconds is a histogram of run duration by workflow.
	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netauto_run_duration_seconds",
			Help:    "Duration of fleet runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"workflow"},
	)

	// DeviceOutcomesTotal counts per-device outcomes by workflow and status.
	DeviceOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netauto_device_outcomes_total",
			Help: "Total device outcomes by workflow and status.",
		},
		[]string{"workflow", "status"},
	)

	// DeviceDurationSeconds is a histogram of per-device processing time.
	DeviceDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netauto_device_duration_seconds",
			Help:    "Time spent on one device in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"workflow"},
	)

	// FailuresTotal counts device failures by the state they happened in.
	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netauto_failures_total",
			Help: "Total device failures by workflow and state.",
		},
		[]string{"workflow", "state"},
	)

	// ConnectionFailuresTotal counts failed session opens by reason.
	ConnectionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netauto_connection_failures_total",
			Help: "Total failed connection attempts by reason.",
		},
		[]string{"reason"},
	)

	// ConnectRetriesTotal counts connection retries by workflow.
	ConnectRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netauto_connect_retries_total",
			Help: "Total connection retries after a failed attempt.",
		},
		[]string{"workflow"},
	)

	// LastRunTimestampSeconds is the unix time a workflow last finished.
	LastRunTimestampSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netauto_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run by workflow.",
		},
		[]string{"workflow"},
	)

	// ScheduleLagSeconds is the delay between scheduled time and actual start.
	ScheduleLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netauto_schedule_lag_seconds",
			Help: "Seconds between scheduled run time and actual trigger.",
		},
		[]string{"workflow"},
	)

	// ActiveDevices is the number of devices currently being worked on.
	ActiveDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "netauto_active_devices",
			Help: "Number of devices with an open or opening session.",
		},
	)
)

func init() {
	Registry.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		DeviceOutcomesTotal,
		DeviceDurationSeconds,
		FailuresTotal,
		ConnectionFailuresTotal,
		ConnectRetriesTotal,
		LastRunTimestampSeconds,
		ScheduleLagSeconds,
		ActiveDevices,
	)
}

// RecordRunComplete records metrics for a finished run.
func RecordRunComplete(workflow, result string, duration time.Duration, finished time.Time) {
	RunsTotal.WithLabelValues(workflow, result).Inc()
	RunDurationSeconds.WithLabelValues(workflow).Observe(duration.Seconds())
	LastRunTimestampSeconds.WithLabelValues(workflow).Set(float64(finished.Unix()))
}

// RecordDeviceOutcome records one device result.
func RecordDeviceOutcome(workflow, status string, duration time.Duration) {
	DeviceOutcomesTotal.WithLabelValues(workflow, status).Inc()
	if duration > 0 {
		DeviceDurationSeconds.WithLabelValues(workflow).Observe(duration.Seconds())
	}
}

// RecordFailure records a device failure in the given state.
func RecordFailure(workflow, state string) {
	FailuresTotal.WithLabelValues(workflow, state).Inc()
}

// RecordConnectionFailure records a failed session open.
func RecordConnectionFailure(reason string) {
	ConnectionFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordConnectRetry records one retry of a session open.
func RecordConnectRetry(workflow string) {
	ConnectRetriesTotal.WithLabelValues(workflow).Inc()
}

// RecordScheduleLag records the scheduling delay for a workflow.
func RecordScheduleLag(workflow string, lag time.Duration) {
	ScheduleLagSeconds.WithLabelValues(workflow).Set(lag.Seconds())
}

// WriteTextfile writes the registry in the text exposition format,
// replacing path atomically.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Sink feeds run events into the metrics above.
type Sink struct{}

// Record implements events.Sink.
func (Sink) Record(e events.Event) {
	switch e.Kind {
	case events.KindTransition:
		if e.State == "connecting" && e.Fields["attempt"] == "1" {
			ActiveDevices.Inc()
		}
	case events.KindFailure:
		if reason := e.Fields["reason"]; reason != "" {
			RecordConnectionFailure(reason)
		}
		if e.Fields["retry"] == "true" {
			RecordConnectRetry(e.Workflow)
			return
		}
		RecordFailure(e.Workflow, e.State)
	case events.KindDeviceDone:
		if e.Fields["dialed"] == "true" {
			ActiveDevices.Dec()
		}
		RecordDeviceOutcome(e.Workflow, e.Fields["status"], e.Duration)
	case events.KindRunFinished:
		RecordRunComplete(e.Workflow, e.Fields["result"], e.Duration, e.Time)
	}
}
