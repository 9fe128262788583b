package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// DefaultTimeout bounds each guest execution when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// TimeoutError reports an operation that did not settle in time.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	seconds := strconv.FormatFloat(e.Duration.Seconds(), 'f', -1, 64)
	return fmt.Sprintf("Execution timed out after %s seconds. Check your code for infinite loops.", seconds)
}

// WithTimeout runs op and returns its result, or a *TimeoutError if op has
// not returned within d. A non-positive d means DefaultTimeout. The context
// passed to op is cancelled when WithTimeout returns, so an op that honours
// it stops; one that does not is abandoned.
func WithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		d = DefaultTimeout
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("operation panicked: %v", r)
			}
		}()
		done <- op(opCtx)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &TimeoutError{Duration: d}
	case <-ctx.Done():
		return ctx.Err()
	}
}
