// Package retry implements the exponential-backoff executor used around
// every fallible network operation in the pipeline.
package retry

import (
	"context"
	"fmt"
	"time"
)

// minInterval is the floor applied to Options.InitialInterval.
const minInterval = 10 * time.Millisecond

// Options controls a single retry.Do run.
type Options struct {
	// MaxRetries is the total number of attempts. Zero means the
	// operation runs exactly once.
	MaxRetries int
	// InitialInterval is the delay before the second attempt; it doubles
	// after each subsequent failure. Values below 10ms are raised to 10ms.
	InitialInterval time.Duration
	// MaxInterval bounds the computed delay. Once the delay reaches it,
	// Do gives up with an IntervalExceededError instead of sleeping.
	MaxInterval time.Duration
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means retry on every error.
	ShouldRetry func(error) bool
}

// ExhaustedError is returned when the attempt counter reaches MaxRetries.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// IntervalExceededError is returned when the next backoff delay would reach
// MaxInterval. Distinct from ExhaustedError so callers can tell "ran out of
// attempts" from "ran out of time budget".
type IntervalExceededError struct {
	Interval time.Duration
	Max      time.Duration
	Cause    error
}

func (e *IntervalExceededError) Error() string {
	return fmt.Sprintf("retry interval %s reached limit %s: %v", e.Interval, e.Max, e.Cause)
}

func (e *IntervalExceededError) Unwrap() error {
	return e.Cause
}

// Do runs op, retrying failures with exponential backoff per opts.
// The sleep between attempts is context-aware; cancellation returns ctx.Err().
func Do(ctx context.Context, op func(context.Context) error, opts Options) error {
	base := opts.InitialInterval
	if base < minInterval {
		base = minInterval
	}

	attempts := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return err
		}

		attempts++
		if attempts >= opts.MaxRetries {
			return &ExhaustedError{Attempts: attempts, Cause: err}
		}

		// Zero-based exponent: the first sleep is the initial interval
		// itself, then 2x, 4x, ... per failure.
		delay := base << (attempts - 1)
		if opts.MaxInterval > 0 && delay >= opts.MaxInterval {
			return &IntervalExceededError{Interval: delay, Max: opts.MaxInterval, Cause: err}
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
