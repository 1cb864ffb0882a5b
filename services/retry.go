package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// StageError wraps an error from one pipeline stage with its retry
// classification. Plain errors without a classification are treated as
// retryable transients; the bounded attempt budget caps them regardless.
type StageError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewRetryable(stage string, err error) *StageError {
	return &StageError{Stage: stage, Retryable: true, Err: err}
}

func NewNonRetryable(stage string, err error) *StageError {
	return &StageError{Stage: stage, Retryable: false, Err: err}
}

func IsRetryable(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return true
}

// SleepFunc waits for d or until ctx is done. Injectable so retry loops are
// testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is one stage's bounded retry behavior.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
}

// Backoff returns the delay after the given zero-based failed attempt:
// min(base * factor^attempt, cap).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(attempt)))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. It stops
// early on success, on a non-retryable error, or when ctx is done. The
// number of attempts actually made is always returned.
func (p RetryPolicy) Do(ctx context.Context, sleep SleepFunc, fn func(ctx context.Context) error) (int, error) {
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if !IsRetryable(err) {
			return attempt + 1, err
		}
		if attempt == p.MaxAttempts-1 {
			return attempt + 1, err
		}
		if sleepErr := sleep(ctx, p.Backoff(attempt)); sleepErr != nil {
			return attempt + 1, err
		}
	}
	return p.MaxAttempts, err
}
