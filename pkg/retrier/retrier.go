// Package retrier wraps fallible operations with bounded exponential backoff
// and jitter. The wrapped operation must be idempotent at the call site: the
// retrier never invents side effects of its own, but it cannot make an unsafe
// operation safe to repeat.
package retrier

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultJitter      = 0.2
)

// Policy configures one retried operation.
type Policy struct {
	// Label identifies the operation in errors and logs only.
	Label string
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; subsequent waits
	// double: BaseDelay * 2^(attempt-1), plus jitter, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the random variation factor (0..1) applied to each delay.
	Jitter float64
	// RetryIf decides whether a failed attempt may be repeated.
	// Nil retries every error.
	RetryIf func(error) bool
}

// DefaultPolicy suits ordinary venue calls.
func DefaultPolicy(label string) Policy {
	return Policy{
		Label:       label,
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      defaultJitter,
	}
}

// AggressivePolicy suits critical exits: more attempts, shorter waits.
func AggressivePolicy(label string) Policy {
	return Policy{
		Label:       label,
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      defaultJitter,
	}
}

func (p *Policy) normalize() {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
}

// ExecutionError reports that every attempt failed.
type ExecutionError struct {
	Label    string
	Attempts int
	LastErr  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.LastErr)
}

func (e *ExecutionError) Unwrap() error { return e.LastErr }

// Do invokes fn until it succeeds, the attempt budget is exhausted, the error
// is classified as not retryable, or ctx ends. Non-retryable errors are
// returned as-is without consuming further budget; exhaustion is reported as
// an ExecutionError wrapping the last error.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	policy.normalize()

	var lastErr error
	delay := policy.BaseDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			jitter := (rand.Float64()*2 - 1) * policy.Jitter * float64(delay)
			sleep := time.Duration(float64(delay) + jitter)
			if sleep < 0 {
				sleep = 0
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}

			delay *= 2
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.RetryIf != nil && !policy.RetryIf(lastErr) {
			return lastErr
		}
	}

	return &ExecutionError{Label: policy.Label, Attempts: policy.MaxAttempts, LastErr: lastErr}
}

// DoWithData is Do for operations that return a value. No value is cached
// across attempts.
func DoWithData[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context) error {
		var inner error
		result, inner = fn(ctx)
		return inner
	})
	return result, err
}
