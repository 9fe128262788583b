// Package sandbox runs untrusted Python submissions against hidden tests.
//
// A Controller owns one interpreter Environment and processes one command at
// a time. Each run or validate operation is gated by the Analyzer, starts
// from a reset namespace, executes under WithTimeout, and ends with exactly
// one completed event.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/caffeineduck/gradebox/executor"
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateRunning
	StateValidating
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateValidating:
		return "validating"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultQueueSize is the Serve queue capacity when none is configured.
const DefaultQueueSize = 16

// Option configures a Controller.
type Option func(*Controller)

// WithOperationTimeout bounds each guest execution. Non-positive means
// DefaultTimeout.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithEmitter sets the destination for outbound events.
func WithEmitter(e Emitter) Option {
	return func(c *Controller) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithQueueSize sets how many submitted commands may wait for Serve.
func WithQueueSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// Controller is the sandbox state machine.
type Controller struct {
	bootstrap Bootstrapper
	analyzer  Analyzer
	timeout   time.Duration
	emitter   Emitter
	log       *zap.Logger
	queueSize int

	queue chan Command
	drain chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	state    State
	env      Environment
	activeID string
	draining bool
	closed   bool
}

// New returns an uninitialized Controller. Call Init before sending
// commands.
func New(bootstrap Bootstrapper, an Analyzer, opts ...Option) *Controller {
	c := &Controller{
		bootstrap: bootstrap,
		analyzer:  an,
		timeout:   DefaultTimeout,
		emitter:   discardEmitter,
		log:       zap.NewNop(),
		queueSize: DefaultQueueSize,
		drain:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	c.queue = make(chan Command, c.queueSize)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init bootstraps the environment and emits ready. On failure it emits a
// single error event and the controller stays failed. Init may be called
// once.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.state = StateInitializing
	c.mu.Unlock()

	started := time.Now()
	env, err := c.start(ctx)
	if err != nil {
		c.setState(StateFailed)
		c.log.Error("sandbox initialization failed", zap.Error(err))
		c.emit(Event{Type: EventError, Content: "Sandbox initialization failed: " + err.Error()})
		return fmt.Errorf("initialize sandbox: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return multierr.Append(ErrClosed, env.Close())
	}
	c.env = env
	c.state = StateReady
	c.mu.Unlock()

	c.log.Info("sandbox ready", zap.Duration("startup", time.Since(started)))
	c.emit(Event{Type: EventReady})
	return nil
}

// start bootstraps an environment and routes its output to events.
func (c *Controller) start(ctx context.Context) (Environment, error) {
	env, err := c.bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	env.SetStdout(executor.SinkFunc(func(chunk string) {
		c.emit(Event{ID: c.currentID(), Type: EventLog, Content: chunk})
	}))
	env.SetStderr(executor.SinkFunc(func(chunk string) {
		c.emit(Event{ID: c.currentID(), Type: EventError, Content: chunk})
	}))
	return env, nil
}

// Handle processes one command synchronously and reports whether it passed.
// Only a fully successful validate passes. Handle never returns an error:
// every failure is reported as an error event followed by completed.
func (c *Controller) Handle(ctx context.Context, cmd Command) bool {
	opID := cmd.ID
	if opID == "" {
		opID = uuid.NewString()
	}
	log := c.log.With(zap.String("op", opID), zap.String("type", string(cmd.Type)))

	var next State
	switch cmd.Type {
	case CommandRun:
		next = StateRunning
	case CommandValidate:
		next = StateValidating
	default:
		log.Warn("unknown command type")
		c.fail(cmd.ID, fmt.Sprintf("Unknown command type: %q", cmd.Type))
		return false
	}

	env, err := c.acquire(cmd.ID, next)
	if err != nil {
		log.Warn("command rejected", zap.Error(err))
		c.fail(cmd.ID, err.Error())
		return false
	}

	started := time.Now()
	var passed bool
	if next == StateRunning {
		err = c.run(ctx, env, cmd)
	} else {
		err = c.validate(ctx, env, cmd)
		passed = err == nil
	}

	// An abandoned guest may still be printing; keep it out of the event
	// stream once the operation is over.
	if EnvironmentLost(err) {
		env.SetStdout(executor.Discard)
		env.SetStderr(executor.Discard)
	}

	if err != nil {
		c.emit(Event{ID: cmd.ID, Type: EventError, Content: err.Error()})
	} else if passed {
		c.emit(Event{ID: cmd.ID, Type: EventSuccess, Content: msgAllPassed})
	}
	c.emit(completed(cmd.ID, passed))

	log.Info("operation finished",
		zap.Duration("duration", time.Since(started)),
		zap.Bool("passed", passed),
		zap.Error(err),
	)

	c.release(ctx, env, err)
	return passed
}

func (c *Controller) run(ctx context.Context, env Environment, cmd Command) error {
	return c.execute(ctx, env, cmd.Code)
}

func (c *Controller) validate(ctx context.Context, env Environment, cmd Command) error {
	if cmd.TestCode == "" {
		return errors.New(msgNoTestCode)
	}

	capture := newCaptureSink(executor.SinkFunc(func(chunk string) {
		c.emit(Event{ID: cmd.ID, Type: EventLog, Content: chunk})
	}))
	restore := env.SwapStdout(capture)
	defer restore()

	if err := c.execute(ctx, env, cmd.Code); err != nil {
		return err
	}

	output := capture.String()
	err := WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		if err := env.Bind(ctx, "output", output); err != nil {
			return err
		}
		return env.Execute(ctx, cmd.TestCode)
	})
	if err != nil {
		return &TestError{Err: err}
	}

	err = WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		_, err := env.RunChecker(ctx)
		return err
	})
	if err != nil {
		return &TestError{Checker: true, Err: err}
	}
	return nil
}

// execute gates code, resets the namespace and runs code under the timeout.
func (c *Controller) execute(ctx context.Context, env Environment, code string) error {
	verdict := c.analyzer.Analyze(ctx, code)
	if !verdict.Safe {
		return &SecurityError{Reason: verdict.Reason}
	}

	return WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		if err := env.Reset(ctx); err != nil {
			return fmt.Errorf("reset environment: %w", err)
		}
		return env.Execute(ctx, code)
	})
}

// acquire moves a ready controller into state next.
func (c *Controller) acquire(id string, next State) (Environment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady:
	case StateRunning, StateValidating:
		return nil, errors.New(msgBusy)
	default:
		return nil, errors.New(msgNotInitialized)
	}
	if c.closed {
		return nil, errors.New(msgNotInitialized)
	}

	c.state = next
	c.activeID = id
	return c.env, nil
}

// release returns the controller to ready. An environment that timed out or
// died is replaced first, since the guest may still hold its namespace.
func (c *Controller) release(ctx context.Context, env Environment, opErr error) {
	if EnvironmentLost(opErr) {
		c.recycle(ctx, env)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = ""
	if c.state == StateRunning || c.state == StateValidating {
		c.state = StateReady
	}
}

// EnvironmentLost reports whether err leaves the interpreter unusable, so
// that it has to be replaced before the next operation.
func EnvironmentLost(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout) ||
		errors.Is(err, executor.ErrSessionExited) ||
		errors.Is(err, executor.ErrSessionAbandoned) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (c *Controller) recycle(ctx context.Context, old Environment) {
	c.log.Warn("replacing interpreter environment")
	if err := old.Close(); err != nil {
		c.log.Warn("close environment", zap.Error(err))
	}

	c.mu.Lock()
	c.activeID = ""
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	// The caller is going away; leave the controller unusable rather than
	// start an interpreter nobody will use.
	if ctx.Err() != nil {
		c.setState(StateFailed)
		return
	}

	env, err := c.start(ctx)
	if err != nil {
		c.setState(StateFailed)
		c.log.Error("sandbox re-initialization failed", zap.Error(err))
		c.emit(Event{Type: EventError, Content: "Sandbox initialization failed: " + err.Error()})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		env.Close()
		return
	}
	c.env = env
	c.state = StateReady
}

// Submit queues cmd for Serve. It fails with ErrNotReady until Init has
// succeeded and with ErrQueueFull rather than block.
func (c *Controller) Submit(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.draining {
		return ErrClosed
	}
	switch c.state {
	case StateUninitialized, StateInitializing, StateFailed:
		return ErrNotReady
	}

	select {
	case c.queue <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain stops accepting submissions. Serve returns once every command
// already queued has been handled.
func (c *Controller) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.draining {
		c.draining = true
		close(c.drain)
	}
}

// Serve handles submitted commands in order until ctx ends, the controller
// is closed, or a Drain has emptied the queue.
func (c *Controller) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case cmd := <-c.queue:
			c.Handle(ctx, cmd)
		case <-c.drain:
			for {
				select {
				case cmd := <-c.queue:
					c.Handle(ctx, cmd)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops Serve and terminates the environment.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.env == nil {
		return nil
	}
	return c.env.Close()
}

// Reject answers a command that never reached the queue, such as an
// undecodable line or a Submit that failed. err selects the content: a full
// queue reads as busy, a controller that is not ready or closed reads as not
// initialized, anything else is reported verbatim.
func (c *Controller) Reject(id string, err error) {
	switch {
	case errors.Is(err, ErrQueueFull):
		c.fail(id, msgBusy)
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrClosed):
		c.fail(id, msgNotInitialized)
	default:
		c.fail(id, err.Error())
	}
}

func (c *Controller) fail(id, content string) {
	c.emit(Event{ID: id, Type: EventError, Content: content})
	c.emit(completed(id, false))
}

func (c *Controller) emit(e Event) {
	c.emitter.Emit(e)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) currentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}
