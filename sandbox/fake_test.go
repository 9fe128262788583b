package sandbox

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"

	"github.com/caffeineduck/gradebox/executor"
)

// fakeEnv is an in-memory Environment understanding a handful of
// Python-shaped statements, one per line:
//
//	print('x')                     line on stdout
//	eprint('x')                    line on stderr
//	name = value                   bind a global
//	assert output == 'x'           fail unless output is x
//	assert 'name' not in dir()     fail if name is bound
//	raise Kind('msg')              fail with "Kind: msg"
//	def check(g): pass|fail        define a checker
//	loop                           run until cancelled
//	block                          wait for unblock or cancellation
type fakeEnv struct {
	mu       sync.Mutex
	stdout   executor.Sink
	stderr   executor.Sink
	globals  map[string]string
	executed []string
	resets   int
	closed   bool
	checked  map[string]string

	blocked chan struct{}
	unblock chan struct{}
}

var (
	printRe     = regexp.MustCompile(`^(e?print)\('(.*)'\)$`)
	assignRe    = regexp.MustCompile(`^(\w+) = (.*)$`)
	assertOutRe = regexp.MustCompile(`^assert output == '(.*)'$`)
	notInRe     = regexp.MustCompile(`^assert '(\w+)' not in dir\(\)$`)
	checkRe     = regexp.MustCompile(`^def check\(g\): (pass|fail)$`)
	raiseRe     = regexp.MustCompile(`^raise (\w+)\('(.*)'\)$`)
)

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		stdout:  executor.Discard,
		stderr:  executor.Discard,
		globals: map[string]string{},
		blocked: make(chan struct{}, 1),
		unblock: make(chan struct{}),
	}
}

func (f *fakeEnv) Execute(ctx context.Context, code string) error {
	f.mu.Lock()
	f.executed = append(f.executed, code)
	f.mu.Unlock()

	for _, line := range strings.Split(code, "\n") {
		if err := f.statement(ctx, strings.TrimSpace(line)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEnv) statement(ctx context.Context, line string) error {
	switch {
	case line == "":
		return nil
	case line == "loop":
		<-ctx.Done()
		return ctx.Err()
	case line == "block":
		f.blocked <- struct{}{}
		select {
		case <-f.unblock:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if m := raiseRe.FindStringSubmatch(line); m != nil {
		return &executor.ExecError{Message: m[1] + ": " + m[2]}
	}

	if m := printRe.FindStringSubmatch(line); m != nil {
		f.mu.Lock()
		sink := f.stdout
		if m[1] == "eprint" {
			sink = f.stderr
		}
		f.mu.Unlock()
		sink.Write(m[2])
		return nil
	}
	if m := assertOutRe.FindStringSubmatch(line); m != nil {
		if f.global("output") != m[1] {
			return &executor.ExecError{Message: "AssertionError (line 1)"}
		}
		return nil
	}
	if m := notInRe.FindStringSubmatch(line); m != nil {
		if _, ok := f.lookup(m[1]); ok {
			return &executor.ExecError{Message: fmt.Sprintf("AssertionError: %s leaked", m[1])}
		}
		return nil
	}
	if m := checkRe.FindStringSubmatch(line); m != nil {
		f.set("check", m[1])
		return nil
	}
	if m := assignRe.FindStringSubmatch(line); m != nil {
		f.set(m[1], m[2])
		return nil
	}
	return &executor.ExecError{Message: "SyntaxError: unsupported statement " + line}
}

func (f *fakeEnv) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.globals)
	f.resets++
	return nil
}

func (f *fakeEnv) Bind(ctx context.Context, name, value string) error {
	f.set(name, value)
	return nil
}

func (f *fakeEnv) RunChecker(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mode, ok := f.globals["check"]
	if !ok {
		return false, nil
	}
	f.checked = maps.Clone(f.globals)
	if mode == "fail" {
		return true, &executor.ExecError{Message: "AssertionError: checker rejected"}
	}
	return true, nil
}

func (f *fakeEnv) SwapStdout(sink executor.Sink) (restore func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.stdout
	f.stdout = sink
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stdout = prev
	}
}

func (f *fakeEnv) SetStdout(sink executor.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdout = sink
}

func (f *fakeEnv) SetStderr(sink executor.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stderr = sink
}

func (f *fakeEnv) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEnv) global(name string) string {
	v, _ := f.lookup(name)
	return v
}

func (f *fakeEnv) lookup(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.globals[name]
	return v, ok
}

func (f *fakeEnv) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globals[name] = value
}

func (f *fakeEnv) currentStdout() executor.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdout
}

func (f *fakeEnv) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeEnv) executedCode() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.executed...)
}

func (f *fakeEnv) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// fakeBootstrapper hands out fresh fakeEnvs and remembers them.
type fakeBootstrapper struct {
	mu   sync.Mutex
	envs []*fakeEnv
	err  error
}

func (b *fakeBootstrapper) Bootstrap(ctx context.Context) (Environment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	env := newFakeEnv()
	b.envs = append(b.envs, env)
	return env, nil
}

func (b *fakeBootstrapper) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envs)
}

func (b *fakeBootstrapper) env(i int) *fakeEnv {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envs[i]
}

func (b *fakeBootstrapper) latest() *fakeEnv {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envs[len(b.envs)-1]
}

func (b *fakeBootstrapper) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// For returns the events tagged with id.
func (r *recorder) For(id string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var errBoom = errors.New("boom")
