package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPriceUnavailable is returned by pricers when a venue cannot quote the
// asset right now. Monitoring treats it as "skip this cycle", never as a
// failed trade outcome.
var ErrPriceUnavailable = errors.New("price unavailable")

// TradeFailureKind classifies trade submission failures for retry purposes.
type TradeFailureKind int

const (
	// FailureTransient covers network errors, timeouts and rate limits.
	// Retried by the retrier up to its attempt budget.
	FailureTransient TradeFailureKind = iota
	// FailureTerminal covers explicit venue rejections and insufficient
	// balance. Never retried.
	FailureTerminal
)

// TradeFailure wraps a trade submission error with its retry classification.
type TradeFailure struct {
	Kind TradeFailureKind
	Err  error
}

func (f *TradeFailure) Error() string {
	if f.Kind == FailureTerminal {
		return fmt.Sprintf("terminal trade failure: %v", f.Err)
	}
	return fmt.Sprintf("transient trade failure: %v", f.Err)
}

func (f *TradeFailure) Unwrap() error { return f.Err }

// Transient marks err as a retryable trade failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TradeFailure{Kind: FailureTransient, Err: err}
}

// Terminal marks err as a non-retryable trade failure.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TradeFailure{Kind: FailureTerminal, Err: err}
}

// IsTerminal reports whether err carries a terminal trade failure.
func IsTerminal(err error) bool {
	var f *TradeFailure
	return errors.As(err, &f) && f.Kind == FailureTerminal
}

// SafetyDeniedError reports a refusal by the circuit breaker or a security
// gate. Never retried; surfaced to the caller as-is.
type SafetyDeniedError struct {
	Gate   string
	Reason string
}

func (e *SafetyDeniedError) Error() string {
	return fmt.Sprintf("denied by %s: %s", e.Gate, e.Reason)
}

// SafetyDenied builds a denial error for the named gate.
func SafetyDenied(gate, reason string) error {
	return &SafetyDeniedError{Gate: gate, Reason: reason}
}

// IsSafetyDenied reports whether err is a safety denial.
func IsSafetyDenied(err error) bool {
	var e *SafetyDeniedError
	return errors.As(err, &e)
}

// IsRetryable reports whether a failed trade attempt may be repeated.
// Safety denials and terminal venue rejections are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsTerminal(err) && !IsSafetyDenied(err)
}
