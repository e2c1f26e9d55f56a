package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/madupadilshan/Network-Automation/internal/session"
)

// RetryPolicy bounds how often a failed session open is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy makes a single attempt; the first failure is terminal.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    1,
		InitialBackoff: 2 * time.Second,
		Multiplier:     2,
		MaxBackoff:     30 * time.Second,
	}
}

// Validate rejects policies that could loop forever or never back off.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.MaxAttempts > 1 && p.InitialBackoff <= 0 {
		return fmt.Errorf("retry initial backoff must be > 0 when retrying")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1, got %v", p.Multiplier)
	}
	if p.MaxBackoff < 0 {
		return fmt.Errorf("retry max backoff must be >= 0")
	}
	return nil
}

// NextDelay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) NextDelay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	multiplier := math.Pow(p.Multiplier, float64(failedAttempt-1))
	delay := time.Duration(float64(p.InitialBackoff) * multiplier)
	if delay <= 0 {
		delay = p.InitialBackoff
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// retryable reports whether a failed open may succeed on another attempt.
// Rejected credentials never will, and retrying them risks lockouts.
func retryable(err error) bool {
	var connErr *session.ConnectionError
	if !errors.As(err, &connErr) {
		return false
	}
	switch connErr.Reason {
	case session.ReasonAuth, session.ReasonPrivilege, session.ReasonCanceled:
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
