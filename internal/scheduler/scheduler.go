/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package scheduler re-runs a workflow on an interval or cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/madupadilshan/Network-Automation/internal/metrics"
)

// Job is one scheduled run. A returned error is logged and the schedule
// continues.
type Job func(ctx context.Context) error

// Config configures the scheduler.
type Config struct {
	// Name labels logs and the schedule lag metric, usually the workflow.
	Name string
	// Schedule is a Go duration ("30m") or a standard five-field cron
	// expression ("0 2 * * *").
	Schedule string
	// CheckInterval is how often the scheduler checks whether a run is due.
	// Default: 10 seconds.
	CheckInterval time.Duration
	// RunOnStart triggers one run immediately when Start is called.
	RunOnStart bool
	Clock      func() time.Time
}

// Scheduler triggers a Job whenever its schedule is due. Runs never
// overlap: a tick that arrives while a run is in progress is dropped.
type Scheduler struct {
	cfg     Config
	job     Job
	log     *zap.Logger
	created time.Time
	lastRun *time.Time
	runs    int
}

// New creates a scheduler, rejecting schedules that cannot be parsed.
func New(cfg Config, job Job, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler: job is required")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Clock()
	if _, err := Next(cfg.Schedule, now); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	return &Scheduler{
		cfg:     cfg,
		job:     job,
		log:     logger.Named("scheduler"),
		created: now,
	}, nil
}

// Runs returns how many runs have been triggered.
func (s *Scheduler) Runs() int { return s.runs }

// Start blocks, triggering runs until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	next, _ := Next(s.cfg.Schedule, s.created)
	s.log.Info("Scheduler starting",
		zap.String("name", s.cfg.Name),
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("check_interval", s.cfg.CheckInterval),
		zap.Time("next_run", next),
	)

	if s.cfg.RunOnStart {
		s.run(ctx, s.cfg.Clock())
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping", zap.Int("runs", s.runs))
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.cfg.Clock()
	due, err := IsDue(s.cfg.Schedule, s.lastRun, s.created, now)
	if err != nil {
		s.log.Error("Failed to check schedule", zap.Error(err))
		return
	}
	if !due {
		return
	}

	anchor := s.created
	if s.lastRun != nil {
		anchor = *s.lastRun
	}
	if expected, err := Next(s.cfg.Schedule, anchor); err == nil {
		if lag := now.Sub(expected); lag > 0 {
			metrics.RecordScheduleLag(s.cfg.Name, lag)
		}
	}
	s.run(ctx, now)
}

func (s *Scheduler) run(ctx context.Context, now time.Time) {
	s.runs++
	s.lastRun = &now
	s.log.Info("Triggering scheduled run", zap.String("name", s.cfg.Name), zap.Int("run", s.runs))

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.log.Error("Scheduled run failed", zap.String("name", s.cfg.Name), zap.Error(err))
	} else {
		s.log.Info("Scheduled run completed",
			zap.String("name", s.cfg.Name),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// IsDue reports whether a run is due at now. The schedule is anchored on
// the last run, or on createdAt before the first run.
func IsDue(schedule string, lastRunAt *time.Time, createdAt, now time.Time) (bool, error) {
	anchor := createdAt.UTC()
	if anchor.IsZero() {
		anchor = now.UTC()
	}
	if lastRunAt != nil {
		anchor = lastRunAt.UTC()
	}
	next, err := Next(schedule, anchor)
	if err != nil {
		return false, err
	}
	return !next.After(now.UTC()), nil
}

// Next returns the first scheduled time after anchor.
func Next(schedule string, anchor time.Time) (time.Time, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return time.Time{}, fmt.Errorf("schedule is required")
	}

	if interval, err := time.ParseDuration(schedule); err == nil {
		if interval <= 0 {
			return time.Time{}, fmt.Errorf("interval must be > 0")
		}
		return anchor.UTC().Add(interval), nil
	}

	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return spec.Next(anchor.UTC()), nil
}
