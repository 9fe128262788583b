// Package gradebox grades untrusted Python submissions inside a WebAssembly
// interpreter.
//
// # Overview
//
// A submission passes through three gates. The [analyzer] parses it with
// tree-sitter and rejects blocked imports and calls before anything runs.
// The [executor] hosts a long-lived RustPython session on wazero with no
// filesystem, network, or environment access. The [sandbox] controller
// resets the interpreter namespace before each submission, bounds every
// execution with a timeout, and replaces the interpreter when one is
// abandoned.
//
// # Basic Usage
//
//	exec, _ := executor.New()
//	defer exec.Close()
//
//	boot := sandbox.SessionBootstrapper(exec, python.New(""))
//	ctrl := sandbox.New(boot, analyzer.New(analyzer.DefaultBlocklist),
//	    sandbox.WithEmitter(sandbox.NewEncoder(os.Stdout)))
//	defer ctrl.Close()
//
//	ctrl.Init(ctx)
//	ctrl.Handle(ctx, sandbox.Command{
//	    ID:       "1",
//	    Type:     sandbox.CommandValidate,
//	    Code:     "def add(a, b):\n    return a + b",
//	    TestCode: "assert add(2, 3) == 5",
//	})
//
// # Validation
//
// Test code runs in the same namespace as the submission, with the
// submission's captured standard output bound to the name output. If the
// test code defines check(g), it is called with a read-only view of the
// user-defined globals and must not raise.
//
// Every command produces zero or more log, error, or success events and
// ends with exactly one completed event.
//
// See the [sandbox], [analyzer], [executor], and [language/python] packages
// for detailed API documentation.
package gradebox
