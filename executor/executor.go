package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Executor manages the WASM runtime and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	log      *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	// CloseOnContextDone lets a cancelled session context stop a guest that
	// never yields.
	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		err = fmt.Errorf("instantiate WASI: %w", err)
		if cache != nil {
			err = multierr.Append(err, cache.Close(ctx))
		}
		return nil, multierr.Append(err, rt.Close(ctx))
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		log:      cfg.logger,
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			return nil, multierr.Append(fmt.Errorf("precompile %s: %w", lang.Name(), err), e.Close())
		}
	}

	return e, nil
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	module, err := lang.Module()
	if err != nil {
		return nil, fmt.Errorf("load %s module: %w", name, err)
	}

	compiled, err := e.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.log.Debug("compiled interpreter module", zap.String("language", name), zap.Int("bytes", len(module)))
	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor. Sessions created by
// it stop working.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	return err
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "gradebox")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "gradebox")
	}
	return filepath.Join(os.TempDir(), "gradebox-cache")
}
