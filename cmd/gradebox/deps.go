package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/caffeineduck/gradebox/analyzer"
	"github.com/caffeineduck/gradebox/config"
	"github.com/caffeineduck/gradebox/executor"
	"github.com/caffeineduck/gradebox/language/python"
	"github.com/caffeineduck/gradebox/logger"
	"github.com/caffeineduck/gradebox/sandbox"
)

// Constructors shared by the one-shot commands and the fx graph of serve.

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newExecutor(cfg *config.Config, log *zap.Logger) (*executor.Executor, error) {
	opts := []executor.ExecutorOption{
		executor.WithLogger(log),
		executor.WithMemoryLimit(executor.MemoryLimitFromMB(cfg.Runtime.MemoryMB)),
	}
	if cfg.Runtime.DiskCache {
		opts = append(opts, executor.WithDiskCache(cfg.Runtime.CacheDir))
	}

	exec, err := executor.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	return exec, nil
}

func newAnalyzer(cfg *config.Config) (*analyzer.Analyzer, error) {
	bl := analyzer.DefaultBlocklist
	if cfg.Security.PolicyFile != "" {
		var err error
		bl, err = analyzer.LoadBlocklist(cfg.Security.PolicyFile)
		if err != nil {
			return nil, err
		}
	}
	return analyzer.New(bl, analyzer.WithMaxSourceBytes(cfg.Security.MaxSourceBytes)), nil
}

func newBootstrapper(cfg *config.Config, exec *executor.Executor) sandbox.Bootstrapper {
	return sandbox.SessionBootstrapper(exec, python.New(cfg.Runtime.ModulePath),
		executor.WithStartTimeout(cfg.StartTimeout()))
}

func controllerOptions(cfg *config.Config, log *zap.Logger, emitter sandbox.Emitter) []sandbox.Option {
	return []sandbox.Option{
		sandbox.WithOperationTimeout(cfg.Timeout()),
		sandbox.WithQueueSize(cfg.Sandbox.QueueSize),
		sandbox.WithLogger(log.Named("sandbox")),
		sandbox.WithEmitter(emitter),
	}
}

// appDeps is everything a one-shot command needs.
type appDeps struct {
	cfg      *config.Config
	log      *zap.Logger
	exec     *executor.Executor
	analyzer *analyzer.Analyzer
}

func newAppDeps(cmd *cobra.Command) (*appDeps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	an, err := newAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	exec, err := newExecutor(cfg, log)
	if err != nil {
		return nil, err
	}
	return &appDeps{cfg: cfg, log: log, exec: exec, analyzer: an}, nil
}

func (d *appDeps) Close() error {
	err := d.exec.Close()
	_ = d.log.Sync()
	return err
}

// fx providers for serve.

func provideExecutor(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*executor.Executor, error) {
	exec, err := newExecutor(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return exec.Close()
		},
	})
	return exec, nil
}

func provideController(cfg *config.Config, log *zap.Logger, exec *executor.Executor, an *analyzer.Analyzer, enc *sandbox.Encoder) *sandbox.Controller {
	return sandbox.New(newBootstrapper(cfg, exec), an, controllerOptions(cfg, log, enc)...)
}
