// Package logger provides structured logging capabilities.
//
// The logger package sets up the application's zap logger. Logs always go
// to stderr: the sandbox driver uses stdout for its event stream.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("sandbox ready")
package logger
