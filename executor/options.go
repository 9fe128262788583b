package executor

import (
	"time"

	"go.uber.org/zap"
)

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
	logger           *zap.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
		logger:           zap.NewNop(),
	}
}

// WithDiskCache enables persistent compilation cache for faster startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/gradebox or XDG_CACHE_HOME/gradebox.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than the first session.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the logger used by the executor and its sessions.
func WithLogger(log *zap.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// MemoryLimitFromMB converts megabytes to WASM pages.
func MemoryLimitFromMB(mb int) uint32 {
	if mb <= 0 {
		return 0
	}
	return uint32(mb) * 16
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	startTimeout time.Duration
	stdout       Sink
	stderr       Sink
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		startTimeout: 30 * time.Second,
	}
}

// WithStartTimeout bounds how long the interpreter may take to bootstrap.
func WithStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithStdout sets the initial sink for guest standard output.
func WithStdout(sink Sink) SessionOption {
	return func(c *sessionConfig) {
		c.stdout = sink
	}
}

// WithStderr sets the initial sink for guest standard error.
func WithStderr(sink Sink) SessionOption {
	return func(c *sessionConfig) {
		c.stderr = sink
	}
}
