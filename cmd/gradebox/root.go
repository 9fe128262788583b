package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gradebox",
	Short: "Sandbox for grading untrusted Python code",
	Long: `gradebox - Vet, run and grade untrusted Python using WebAssembly.

Submitted code is checked by a static analyzer, executed in a long-lived
RustPython interpreter hosted by wazero, bounded by a timeout, and graded
against hidden test code. Events are written as JSON lines.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errFailed reports an operation that ran but did not succeed. Its events
// already explain why, so nothing more is printed.
var errFailed = errors.New("operation failed")

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./config.yaml or ./config/config.yaml)")
}

// readSource returns code from the -c flag, a file argument, or stdin.
func readSource(cmd *cobra.Command, args []string, flag string) (string, error) {
	code, _ := cmd.Flags().GetString(flag)

	switch {
	case code != "":
		return code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok {
			if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
				return "", fmt.Errorf("no code given: pass a file, use --%s, or pipe code on stdin", flag)
			}
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
