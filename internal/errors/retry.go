package errors

import (
	"context"
	"errors"
	"time"
)

// Retry budget for startup connections. Conversation-time failures surface
// to the user instead of blocking the update, so nothing else retries.
const (
	retryAttempts  = 4
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// WithRetry runs fn until it succeeds, fails with a non-retryable error, or
// exhausts the attempt budget. The wait between attempts doubles up to
// retryMaxDelay and honors ctx cancellation.
func WithRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	delay := retryBaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) || attempt == retryAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Retryable
}
