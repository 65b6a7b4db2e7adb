package lnmrest

import (
	"context"
	"errors"
	"net"
	"time"
)

// IsTransient reports whether err is the kind of failure the sync process
// should retry (timeouts, 5xx) rather than surface as recoverable
// immediately.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// WithRetry calls fn up to maxTrials times, sleeping cooldown between
// transient failures. A non-transient error, or exhausting maxTrials,
// returns the last error unwrapped so the caller can classify it.
func WithRetry(ctx context.Context, maxTrials int, cooldown time.Duration, fn func() error) error {
	var err error
	for trial := 0; trial < maxTrials; trial++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldown):
		}
	}
	return err
}
