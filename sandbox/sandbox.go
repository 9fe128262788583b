package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Result is the outcome of a one-shot operation.
type Result struct {
	Events   []Event
	Passed   bool
	Duration time.Duration
}

// Run initializes a controller, handles cmd and closes the controller.
// Events still reach any emitter set in opts and are also collected in the
// Result. The error is non-nil only if the sandbox could not start or shut
// down; operation failures are reported as events.
func Run(ctx context.Context, bootstrap Bootstrapper, an Analyzer, cmd Command, opts ...Option) (result Result, err error) {
	start := time.Now()

	c := New(bootstrap, an, opts...)
	defer func() {
		err = multierr.Append(err, c.Close())
		result.Duration = time.Since(start)
	}()

	var mu sync.Mutex
	forward := c.emitter
	c.emitter = EmitterFunc(func(e Event) {
		mu.Lock()
		result.Events = append(result.Events, e)
		mu.Unlock()
		forward.Emit(e)
	})

	if err := c.Init(ctx); err != nil {
		return result, err
	}

	passed := c.Handle(ctx, cmd)

	mu.Lock()
	result.Passed = passed
	mu.Unlock()
	return result, nil
}
