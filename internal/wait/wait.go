// Package wait provides the bounded-polling primitive shared by the sign-in
// flow, the reschedule state machine, and outcome detection.
package wait

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the predicate never held within the deadline.
var ErrTimeout = errors.New("wait: condition not met before timeout")

// For polls pred every interval until it returns true, the timeout elapses,
// or ctx is cancelled. Errors from pred are ignored until the deadline; the
// last one is wrapped into the returned error so callers can see what the
// final check failed on.
func For(ctx context.Context, timeout, interval time.Duration, pred func() (bool, error)) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := pred()
		if err == nil && ok {
			return nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			if lastErr != nil {
				return errors.Join(ErrTimeout, lastErr)
			}
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
