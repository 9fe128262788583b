package sandbox

import (
	"errors"
)

var (
	ErrAlreadyInitialized = errors.New("sandbox already initialized")
	ErrQueueFull          = errors.New("sandbox command queue full")
	ErrClosed             = errors.New("sandbox closed")
	ErrNotReady           = errors.New("sandbox not ready")
)

// Event content for rejected operations.
const (
	msgNotInitialized = "Sandbox is not initialized yet"
	msgBusy           = "Sandbox is busy"
	msgNoTestCode     = "No test code provided"
	msgAllPassed      = "All tests passed!"
)

// SecurityError is returned when the analyzer rejects source. Nothing was
// executed.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	return "Security violation: " + e.Reason
}

// TestError wraps a failure raised by hidden test code or its checker.
type TestError struct {
	Checker bool
	Err     error
}

func (e *TestError) Error() string {
	if e.Checker {
		return "Check failed: " + e.Err.Error()
	}
	return "Test failed: " + e.Err.Error()
}

func (e *TestError) Unwrap() error {
	return e.Err
}
