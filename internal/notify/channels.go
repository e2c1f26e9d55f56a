/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package notify delivers run reports to chat and webhook endpoints.
// Each finished run produces one Message whose severity reflects how many
// devices failed; the Router sends it to the channels subscribed to that
// severity.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madupadilshan/Network-Automation/internal/orchestrator"
)

// Severity levels, lowest first.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Channel is the interface for all notification backends.
type Channel interface {
	// Send delivers a notification. Returns an error if delivery fails.
	Send(ctx context.Context, msg Message) error

	// Type returns the channel type name.
	Type() string
}

// Message is a run report to be delivered.
type Message struct {
	Workflow  string
	RunID     string
	Severity  string
	Title     string
	Body      string
	Failed    []string
	Timestamp time.Time
}

// Report builds the message for a finished run. A run where every device
// failed is critical, a partial failure is a warning.
func Report(s *orchestrator.Summary) Message {
	msg := Message{
		Workflow:  s.Workflow,
		RunID:     s.RunID,
		Severity:  SeverityInfo,
		Timestamp: s.Finished,
	}
	total := len(s.Outcomes)
	failed := s.Failed()
	switch {
	case failed > 0 && failed == total:
		msg.Severity = SeverityCritical
	case failed > 0:
		msg.Severity = SeverityWarning
	}
	msg.Title = fmt.Sprintf("%s: %d of %d device(s) failed", s.Workflow, failed, total)
	if failed == 0 {
		msg.Title = fmt.Sprintf("%s: %d device(s) succeeded", s.Workflow, s.Succeeded())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Succeeded %d, failed %d, skipped %d in %s", s.Succeeded(), failed, s.Skipped(), s.Duration().Round(time.Millisecond))
	for _, o := range s.Failures() {
		msg.Failed = append(msg.Failed, o.Device)
		fmt.Fprintf(&b, "\n%s (%s): %s", o.Device, o.State, o.Detail)
	}
	msg.Body = b.String()
	return msg
}

// SlackChannel sends notifications to Slack via incoming webhook.
type SlackChannel struct {
	WebhookURL string
	Channel    string // optional override
	client     *http.Client
}

// NewSlackChannel creates a Slack notification channel.
func NewSlackChannel(webhookURL, channel string) *SlackChannel {
	return &SlackChannel{
		WebhookURL: webhookURL,
		Channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackChannel) Type() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("%s *[%s] %s*\n%s", severityEmoji(msg.Severity), strings.ToUpper(msg.Severity), msg.Title, msg.Body)
	payload := map[string]any{"text": text}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	resp, err := postJSON(ctx, s.client, s.WebhookURL, payload, nil)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// WebhookChannel sends JSON notifications to any HTTP endpoint.
type WebhookChannel struct {
	URL     string
	Headers map[string]string // optional auth headers
	client  *http.Client
}

// NewWebhookChannel creates a generic webhook notification channel.
func NewWebhookChannel(url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		URL:     url,
		Headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) Type() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"workflow":  msg.Workflow,
		"run_id":    msg.RunID,
		"severity":  msg.Severity,
		"title":     msg.Title,
		"body":      msg.Body,
		"failed":    msg.Failed,
		"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
	}
	resp, err := postJSON(ctx, w.client, w.URL, payload, w.Headers)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

// SeverityRoute maps severity levels to channels. A channel receives
// messages at its level and above.
type SeverityRoute struct {
	Info     []Channel
	Warning  []Channel
	Critical []Channel
}

// Router dispatches notifications to channels based on severity.
type Router struct {
	routes  SeverityRoute
	limiter *RateLimiter
	logger  *zap.Logger
}

// NewRouter creates a notification router. limiter may be nil.
func NewRouter(routes SeverityRoute, limiter *RateLimiter, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{routes: routes, limiter: limiter, logger: logger}
}

// Notify sends a message to all channels matching its severity.
func (r *Router) Notify(ctx context.Context, msg Message) []error {
	channels := r.channelsForSeverity(msg.Severity)
	if len(channels) == 0 {
		return nil
	}

	if r.limiter != nil && !r.limiter.Allow(msg.Workflow) {
		r.logger.Info("notification rate-limited", zap.String("workflow", msg.Workflow))
		return nil
	}

	var errs []error
	for _, ch := range channels {
		if err := ch.Send(ctx, msg); err != nil {
			r.logger.Error("notification failed", zap.String("type", ch.Type()), zap.String("workflow", msg.Workflow), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.logger.Info("notification sent", zap.String("type", ch.Type()), zap.String("workflow", msg.Workflow), zap.String("severity", msg.Severity))
	}
	return errs
}

func (r *Router) channelsForSeverity(severity string) []Channel {
	var all []Channel
	switch severity {
	case SeverityCritical:
		all = append(all, r.routes.Critical...)
		all = append(all, r.routes.Warning...)
		all = append(all, r.routes.Info...)
	case SeverityWarning:
		all = append(all, r.routes.Warning...)
		all = append(all, r.routes.Info...)
	default:
		all = append(all, r.routes.Info...)
	}
	return all
}

// RateLimiter limits notifications per workflow per hour, so a schedule
// against a broken fleet does not flood a channel.
type RateLimiter struct {
	maxPerHour int
	now        func() time.Time
	mu         sync.Mutex
	counts     map[string][]time.Time
}

// NewRateLimiter creates a rate limiter with the given max per hour per workflow.
func NewRateLimiter(maxPerHour int) *RateLimiter {
	return &RateLimiter{
		maxPerHour: maxPerHour,
		now:        time.Now,
		counts:     make(map[string][]time.Time),
	}
}

// Allow checks if the workflow is within rate limits and records the send.
func (rl *RateLimiter) Allow(workflow string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-time.Hour)

	recent := rl.counts[workflow][:0]
	for _, t := range rl.counts[workflow] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= rl.maxPerHour {
		rl.counts[workflow] = recent
		return false
	}
	rl.counts[workflow] = append(recent, now)
	return true
}

func severityEmoji(severity string) string {
	switch severity {
	case SeverityCritical:
		return "🔴"
	case SeverityWarning:
		return "🟡"
	case SeverityInfo:
		return "🔵"
	default:
		return "⚪"
	}
}
