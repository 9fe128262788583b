package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrExecutorClosed   = errors.New("executor closed")
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionBusy      = errors.New("session busy")
	ErrSessionExited    = errors.New("interpreter exited")
	ErrSessionAbandoned = errors.New("session abandoned after cancelled command")
)

// ExecError is an exception raised by guest code. Message has the form
// "<ExceptionType>: <message>".
type ExecError struct {
	Message string
}

func (e *ExecError) Error() string {
	return e.Message
}

// Session is one long-lived interpreter instance. Its global namespace
// persists across commands until Reset removes the user-defined names.
// Commands are serialized; a second command issued while one is in
// flight fails with ErrSessionBusy.
type Session struct {
	exec *Executor
	lang Language
	cfg  sessionConfig
	log  *zap.Logger

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *lineWriter
	stderr      *lineWriter
	protocol    *sessionProtocol

	cancel  context.CancelFunc
	exited  chan struct{}
	exitErr error

	mu        sync.Mutex
	execMu    sync.Mutex
	closed    bool
	abandoned bool
}

// NewSession starts an interpreter and waits for its bootstrap to finish.
func (e *Executor) NewSession(ctx context.Context, lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	compiled, err := e.getCompiled(ctx, lang)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()

	s := &Session{
		exec:   e,
		lang:   lang,
		cfg:    cfg,
		log:    e.log.With(zap.String("language", lang.Name())),
		stdout: newLineWriter(cfg.stdout),
		stderr: newLineWriter(cfg.stderr),
		exited: make(chan struct{}),
	}
	s.stdinReader, s.stdin = io.Pipe()
	s.protocol = newSessionProtocol(token, s.stderr)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(lang.Args()...).
		WithName("")

	modCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		_, err := e.runtime.InstantiateModule(modCtx, compiled, moduleConfig)
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		s.stdinReader.Close()
		close(s.exited)
		s.log.Debug("interpreter exited", zap.Error(err))
	}()

	startCtx, stop := context.WithTimeout(ctx, cfg.startTimeout)
	defer stop()

	started := time.Now()
	if err := s.start(startCtx, token); err != nil {
		return nil, multierr.Append(fmt.Errorf("start session: %w", err), s.Close())
	}

	s.log.Debug("session ready", zap.Duration("startup", time.Since(started)))
	return s, nil
}

func (s *Session) start(ctx context.Context, token string) error {
	if err := s.send(ctx, command{Type: "hello", Token: token}); err != nil {
		return err
	}

	select {
	case <-s.protocol.Ready():
		return nil
	case <-s.exited:
		return s.exitError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs code in the session's global namespace.
func (s *Session) Execute(ctx context.Context, code string) error {
	_, err := s.call(ctx, command{Type: "exec", Code: code})
	return err
}

// Reset deletes every global binding absent from the bootstrap snapshot,
// underscore names included, and restores snapshot names that were
// reassigned.
func (s *Session) Reset(ctx context.Context) error {
	_, err := s.call(ctx, command{Type: "reset"})
	return err
}

// Bind sets a string global visible to subsequent code.
func (s *Session) Bind(ctx context.Context, name, value string) error {
	_, err := s.call(ctx, command{Type: "bind", Name: name, Value: value})
	return err
}

// RunChecker calls a global function named check, if one is defined, with a
// read-only snapshot of the user-defined globals. It reports whether the
// checker existed.
func (s *Session) RunChecker(ctx context.Context) (bool, error) {
	raw, err := s.call(ctx, command{Type: "check"})
	if err != nil {
		return false, err
	}

	var ran bool
	if err := json.Unmarshal(raw, &ran); err != nil {
		return false, fmt.Errorf("decode check reply: %w", err)
	}
	return ran, nil
}

// Globals returns the names bound outside the protected set, sorted.
func (s *Session) Globals(ctx context.Context) ([]string, error) {
	raw, err := s.call(ctx, command{Type: "globals"})
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode globals reply: %w", err)
	}
	return names, nil
}

// SwapStdout routes guest standard output to sink until restore is called.
func (s *Session) SwapStdout(sink Sink) (restore func()) {
	prev := s.stdout.Swap(sink)
	return func() {
		s.stdout.Swap(prev)
	}
}

// SetStdout replaces the guest standard output sink.
func (s *Session) SetStdout(sink Sink) {
	s.stdout.Swap(sink)
}

// SetStderr replaces the guest standard error sink.
func (s *Session) SetStderr(sink Sink) {
	s.stderr.Swap(sink)
}

func (s *Session) call(ctx context.Context, cmd command) (json.RawMessage, error) {
	if !s.execMu.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.execMu.Unlock()

	if err := s.usable(); err != nil {
		return nil, err
	}

	s.protocol.Drain()

	if err := s.send(ctx, cmd); err != nil {
		return nil, err
	}

	select {
	case r := <-s.protocol.Replies():
		s.flush()
		return r.value, r.err
	case <-s.exited:
		s.flush()
		return nil, s.exitError()
	case <-ctx.Done():
		s.abandon(cmd.Type)
		return nil, ctx.Err()
	}
}

// send writes one command line. The pipe write blocks until the guest reads,
// so it runs aside and races the guest exiting or ctx ending.
func (s *Session) send(ctx context.Context, cmd command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	data = append(data, '\n')

	errCh := make(chan error, 1)
	go func() {
		_, err := s.stdin.Write(data)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("write command: %w", err)
		}
		return nil
	case <-s.exited:
		return s.exitError()
	case <-ctx.Done():
		s.abandon(cmd.Type)
		return ctx.Err()
	}
}

func (s *Session) flush() {
	s.stdout.Flush()
	s.stderr.Flush()
}

func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrSessionClosed
	case s.abandoned:
		return ErrSessionAbandoned
	}

	select {
	case <-s.exited:
		return ErrSessionExited
	default:
		return nil
	}
}

// abandon marks the session unusable. The guest may still be running the
// cancelled command; only Close stops it.
func (s *Session) abandon(cmdType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.abandoned {
		s.abandoned = true
		s.log.Warn("session abandoned", zap.String("command", cmdType))
	}
}

func (s *Session) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitErr != nil {
		return fmt.Errorf("%w: %v", ErrSessionExited, s.exitErr)
	}
	return ErrSessionExited
}

// Close terminates the interpreter, including a guest still running an
// abandoned command.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Cancelling the module context stops the guest at its next
	// instruction-boundary check; closing the pipes unblocks its reads.
	s.cancel()
	return multierr.Combine(
		s.stdin.Close(),
		s.stdinReader.Close(),
	)
}

// Done is closed when the interpreter has exited.
func (s *Session) Done() <-chan struct{} {
	return s.exited
}
