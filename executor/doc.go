// Package executor hosts a guest interpreter compiled to WebAssembly and
// keeps one instance of it alive as a Session.
//
// # Overview
//
// The Executor owns the wazero runtime and caches compiled interpreter
// modules. A Session instantiates one module and drives it through a
// line-oriented command protocol: commands are JSON lines on the guest's
// stdin, replies are NUL-framed records on the guest's stderr tagged with
// a per-session token. Guest stdout and the remaining stderr text are split
// into lines and handed to swappable sinks.
//
// # Basic Usage
//
//	exec, err := executor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	session, err := exec.NewSession(ctx, python.New("python.wasm"),
//	    executor.WithStdout(executor.SinkFunc(func(line string) {
//	        fmt.Println(line)
//	    })))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Execute(ctx, `x = 42`)
//	session.Execute(ctx, `print(x)`) // 42
//	session.Reset(ctx)                // x is gone
//
// # Cancellation
//
// A command whose context ends before the guest replies leaves the
// session abandoned: the guest may still be running, and every later
// command fails with [ErrSessionAbandoned]. Close terminates the module.
package executor
