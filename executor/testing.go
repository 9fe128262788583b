package executor

import (
	"sync"
)

// Shared executor for tests, so the interpreter module is compiled once
// per test binary instead of once per test.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared executor for testing.
// The executor is created once and reused.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		testExecutor, testExecutorErr = New()
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
// Call this in TestMain if needed, but typically not necessary.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{} // Reset for next test run
	}
}
