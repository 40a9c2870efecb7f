package assistant

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned when a polled job fails to reach a
// terminal state within the wall-clock budget.
var ErrPollTimeout = errors.New("polling timed out")

// pollUntil repeatedly fetches the state of a remote asynchronous
// job until terminal reports true, the wall-clock timeout elapses,
// or the context is cancelled.  The first fetch happens immediately;
// subsequent fetches are spaced by interval.  The helper is
// deliberately generic over its predicates so other remote jobs can
// reuse it.
func pollUntil[T any](
	ctx context.Context,
	interval, timeout time.Duration,
	fetch func(context.Context) (T, error),
	terminal func(T) bool,
) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	for {
		v, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		if terminal(v) {
			return v, nil
		}
		if time.Now().After(deadline) {
			return v, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}
	}
}
