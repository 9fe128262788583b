package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/gradebox/executor"
	"github.com/caffeineduck/gradebox/sandbox"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with persistent state",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Every input is checked by the security analyzer and runs under the
configured timeout. Unlike run, state persists between inputs until
:reset is entered or an input times out.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.gradebox_history)")
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".gradebox_history")
	}

	deps, err := newAppDeps(cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	r := &repl{
		bootstrap: newBootstrapper(deps.cfg, deps.exec),
		analyzer:  deps.analyzer,
		timeout:   deps.cfg.Timeout(),
		log:       deps.log,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
	}
	if err := r.start(cmd.Context()); err != nil {
		return err
	}
	defer r.close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(r.errOut, "gradebox python REPL (type 'exit' to quit, Ctrl+D to exit)")

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := r.eval(cmd.Context(), line); err != nil {
			return err
		}
	}
}

// repl evaluates inputs in one persistent environment. Unlike the
// controller it never resets the namespace between inputs.
type repl struct {
	bootstrap sandbox.Bootstrapper
	analyzer  sandbox.Analyzer
	timeout   time.Duration
	log       *zap.Logger
	out       io.Writer
	errOut    io.Writer

	env sandbox.Environment
}

func (r *repl) start(ctx context.Context) error {
	env, err := r.bootstrap(ctx)
	if err != nil {
		return err
	}
	env.SetStdout(executor.SinkFunc(func(chunk string) { fmt.Fprintln(r.out, chunk) }))
	env.SetStderr(executor.SinkFunc(func(chunk string) { fmt.Fprintln(r.errOut, chunk) }))
	r.env = env
	return nil
}

func (r *repl) close() {
	if r.env == nil {
		return
	}
	if err := r.env.Close(); err != nil {
		r.log.Warn("close environment", zap.Error(err))
	}
	r.env = nil
}

// eval runs one input. Guest failures are printed; only a failure to
// replace a lost environment is returned.
func (r *repl) eval(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == ":reset" {
		if err := r.env.Reset(ctx); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
		return nil
	}

	verdict := r.analyzer.Analyze(ctx, input)
	if !verdict.Safe {
		fmt.Fprintln(r.errOut, (&sandbox.SecurityError{Reason: verdict.Reason}).Error())
		return nil
	}

	err := sandbox.WithTimeout(ctx, r.timeout, func(ctx context.Context) error {
		return r.env.Execute(ctx, input)
	})
	if err == nil {
		return nil
	}

	if !sandbox.EnvironmentLost(err) {
		fmt.Fprintln(r.errOut, err.Error())
		return nil
	}

	r.env.SetStdout(executor.Discard)
	r.env.SetStderr(executor.Discard)
	fmt.Fprintln(r.errOut, err.Error())
	if errors.Is(err, context.Canceled) {
		return err
	}

	r.close()
	if err := r.start(ctx); err != nil {
		return fmt.Errorf("restart interpreter: %w", err)
	}
	fmt.Fprintln(r.errOut, "(interpreter restarted, state was lost)")
	return nil
}
