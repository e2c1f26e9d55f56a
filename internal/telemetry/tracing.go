/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for fleet runs.
//
// A run produces one parent span, one child span per device and one span
// per session phase. Custom span attributes use the `netauto.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/madupadilshan/Network-Automation"
)

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC exporter.
// If endpoint is empty, tracing is disabled (noop provider is used).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("netauto"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartRunSpan creates the parent span for a fleet run.
func StartRunSpan(ctx context.Context, workflow, runID string, devices int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "fleet.run",
		trace.WithAttributes(
			attribute.String("netauto.workflow", workflow),
			attribute.String("netauto.run_id", runID),
			attribute.Int("netauto.devices", devices),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRunSpan records the run totals.
func EndRunSpan(span trace.Span, succeeded, failed, skipped int) {
	span.SetAttributes(
		attribute.Int("netauto.succeeded", succeeded),
		attribute.Int("netauto.failed", failed),
		attribute.Int("netauto.skipped", skipped),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d device(s) failed", failed))
	}
	span.End()
}

// StartDeviceSpan creates a child span for one device.
func StartDeviceSpan(ctx context.Context, device, address, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "fleet.device",
		trace.WithAttributes(
			attribute.String("netauto.device", device),
			attribute.String("netauto.address", address),
			attribute.String("netauto.device_kind", kind),
		),
	)
}

// EndDeviceSpan records the device outcome.
func EndDeviceSpan(span trace.Span, status, state string, err error) {
	span.SetAttributes(
		attribute.String("netauto.status", status),
		attribute.String("netauto.final_state", state),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartPhaseSpan creates a child span for one session phase such as
// connecting or configuring.
func StartPhaseSpan(ctx context.Context, phase string, commands int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "device."+phase,
		trace.WithAttributes(
			attribute.Int("netauto.commands", commands),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndPhaseSpan closes a phase span, recording err if any.
func EndPhaseSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
