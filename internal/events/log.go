/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package events

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes one structured log entry per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink over logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(e Event) {
	fields := []zap.Field{
		zap.String("event", string(e.Kind)),
	}
	if e.RunID != "" {
		fields = append(fields, zap.String("run_id", e.RunID))
	}
	if e.Workflow != "" {
		fields = append(fields, zap.String("workflow", e.Workflow))
	}
	if e.Device != "" {
		fields = append(fields, zap.String("device", e.Device))
	}
	if e.State != "" {
		fields = append(fields, zap.String("state", e.State))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.String(k, e.Fields[k]))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Kind == KindFailure:
		s.logger.Error(msg, fields...)
	case e.Kind == KindUnknownDevice, e.Err != nil:
		s.logger.Warn(msg, fields...)
	case e.Kind == KindTransition, e.Kind == KindStep:
		s.logger.Debug(msg, fields...)
	default:
		s.logger.Info(msg, fields...)
	}
}

// NewLogger builds a logger that writes JSON lines to path and a human
// readable stream to stderr. An empty path logs to the console only. The
// returned function flushes and closes the file.
func NewLogger(path, level string) (*zap.Logger, func() error, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl),
	}

	var file *os.File
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		// The file keeps debug detail regardless of the console level.
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}
