package sandbox

import (
	"context"
	"fmt"

	"github.com/caffeineduck/gradebox/analyzer"
	"github.com/caffeineduck/gradebox/executor"
)

// Environment is the interpreter the controller drives. *executor.Session
// implements it.
type Environment interface {
	Execute(ctx context.Context, code string) error
	Reset(ctx context.Context) error
	Bind(ctx context.Context, name, value string) error
	RunChecker(ctx context.Context) (bool, error)
	SwapStdout(sink executor.Sink) (restore func())
	SetStdout(sink executor.Sink)
	SetStderr(sink executor.Sink)
	Close() error
}

var _ Environment = (*executor.Session)(nil)

// Bootstrapper constructs a ready Environment.
type Bootstrapper func(ctx context.Context) (Environment, error)

// Analyzer gates source before it runs. *analyzer.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, source string) analyzer.Verdict
}

var _ Analyzer = (*analyzer.Analyzer)(nil)

// SessionBootstrapper returns a Bootstrapper starting interpreter sessions
// on exec.
func SessionBootstrapper(exec *executor.Executor, lang executor.Language, opts ...executor.SessionOption) Bootstrapper {
	return func(ctx context.Context) (Environment, error) {
		session, err := exec.NewSession(ctx, lang, opts...)
		if err != nil {
			return nil, fmt.Errorf("start %s session: %w", lang.Name(), err)
		}
		return session, nil
	}
}
