package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caffeineduck/gradebox/config"
	"github.com/caffeineduck/gradebox/logger"
	"github.com/caffeineduck/gradebox/sandbox"
)

// maxCommandLine bounds one JSON command on stdin.
const maxCommandLine = 4 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process JSON commands from stdin",
	Long: `Start one long-lived sandbox and process commands read from stdin,
one JSON object per line:

  {"id":"1","type":"run","code":"print(1)"}
  {"id":"2","type":"validate","code":"x = 2","testCode":"assert x == 2"}

Events are written to stdout as JSON lines. A ready event is sent once the
interpreter has started. Commands are handled in order; the process exits
after the last command once stdin is closed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	app := fx.New(
		serveOptions(path, cmd.InOrStdin(), cmd.OutOrStdout()),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

// serveOptions builds the dependency graph of the serve command.
func serveOptions(configPath string, in io.Reader, out io.Writer) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return config.Load(configPath) },
			logger.NewFromConfig,
			provideExecutor,
			newAnalyzer,
			func() *sandbox.Encoder { return sandbox.NewEncoder(out) },
			func() io.Reader { return in },
			provideController,
		),
		fx.Invoke(runServer),
	)
}

func runServer(lc fx.Lifecycle, sd fx.Shutdowner, ctrl *sandbox.Controller, in io.Reader, enc *sandbox.Encoder, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				code := 0
				if err := serveStream(ctx, ctrl, in, log); err != nil {
					log.Error("serve stopped", zap.Error(err))
					code = 1
				}
				if err := enc.Err(); err != nil {
					log.Error("writing events failed", zap.Error(err))
					code = 1
				}
				_ = sd.Shutdown(fx.ExitCode(code))
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return ctrl.Close()
		},
	})
}

// serveStream initializes ctrl, then feeds it commands decoded from in until
// in is exhausted and every queued command has been handled. Nothing is read
// from in before Init returns.
func serveStream(ctx context.Context, ctrl *sandbox.Controller, in io.Reader, log *zap.Logger) error {
	// A failed start has already been reported as an event; Submit keeps
	// answering with ErrNotReady.
	if err := ctrl.Init(ctx); err != nil {
		log.Error("sandbox initialization failed", zap.Error(err))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Serve(ctx)
	})

	g.Go(func() error {
		defer ctrl.Drain()

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxCommandLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			cmd, err := sandbox.DecodeCommand(line)
			if err != nil {
				log.Warn("rejected command", zap.Error(err))
				ctrl.Reject(cmd.ID, err)
				continue
			}
			if err := ctrl.Submit(cmd); err != nil {
				if errors.Is(err, sandbox.ErrClosed) {
					return nil
				}
				log.Warn("rejected command", zap.String("id", cmd.ID), zap.Error(err))
				ctrl.Reject(cmd.ID, err)
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
			return err
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
