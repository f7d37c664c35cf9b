// ABOUTME: Generic poll-until-ready loop for async job endpoints
// ABOUTME: Used for the late cancellation report and reusable for other report runs
package momence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when every poll attempt finished without a ready result.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollOptions bounds a Poll loop.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	// OnWait is called before each sleep with the 1-based attempt number and
	// the attempt error, if any.
	OnWait func(attempt int, err error)
}

// Poll calls fetch until ready reports true. Errors from fetch count as a
// not-ready attempt; the last one is wrapped into the exhaustion error.
func Poll[T any](ctx context.Context, opts PollOptions, fetch func(context.Context) (T, error), ready func(T) bool) (T, error) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		v, err := fetch(ctx)
		if err == nil && ready(v) {
			return v, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts {
			break
		}
		if opts.OnWait != nil {
			opts.OnWait(attempt, err)
		}
		select {
		case <-time.After(opts.Interval):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	if lastErr != nil {
		return zero, fmt.Errorf("%w after %d attempts: %w", ErrPollExhausted, opts.MaxAttempts, lastErr)
	}
	return zero, fmt.Errorf("%w after %d attempts", ErrPollExhausted, opts.MaxAttempts)
}
