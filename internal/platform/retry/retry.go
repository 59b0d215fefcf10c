// Package retry runs an operation until it succeeds, its error is classified
// as permanent, or the attempt budget runs out.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Action is a classifier's verdict on a failed attempt.
type Action int

const (
	// Stop aborts immediately; the error will not resolve on its own.
	Stop Action = iota
	// Retry waits the current backoff, then tries again.
	Retry
	// After is Retry with the rate-limit backoff instead.
	After
)

// Classify maps an operation error to an Action.
type Classify func(err error) Action

// Policy bounds the retry loop. Backoff doubles after each wait; a
// rate-limited attempt resets it to RateLimitBackoff first.
type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration

	// OnRetry observes each scheduled retry. Not called for the final,
	// budget-exhausting attempt.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// PermanentError wraps an error the classifier ruled out of retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Do runs op under the policy and returns its result. The last error is
// wrapped with the attempt count on exhaustion, or in a PermanentError when
// classified Stop.
func Do[T any](ctx context.Context, p Policy, classify Classify, op func() (T, error)) (T, error) {
	var zero T
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		switch classify(err) {
		case Stop:
			return zero, &PermanentError{Err: err}
		case After:
			backoff = p.RateLimitBackoff
		}

		if attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		if err := wait(ctx, backoff); err != nil {
			return zero, err
		}
		backoff *= 2
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
	}
}
