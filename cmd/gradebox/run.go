package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/gradebox/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code once and print its events",
	Long: `Vet and execute Python code in a fresh sandbox.

Code can be provided via:
  - File argument: gradebox run script.py
  - Inline flag: gradebox run -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | gradebox run

Events are printed as JSON lines. The exit status is 1 if the code was
rejected or raised an error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run code against hidden test code",
	Long: `Execute Python code, then run test code that can inspect the code's
globals and its captured standard output through the variable 'output'.
If the test code defines check(g), it is called with a read-only view of
the user-defined globals.

The exit status is 0 only if every stage passed.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	rootCmd.AddCommand(runCmd)

	validateCmd.Flags().StringP("code", "c", "", "Code to execute")
	validateCmd.Flags().String("code-file", "", "File containing the code to execute")
	validateCmd.Flags().String("test", "", "Test code")
	validateCmd.Flags().String("test-file", "", "File containing the test code")
	rootCmd.AddCommand(validateCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args, "code")
	if err != nil {
		return err
	}

	result, err := oneShot(cmd, sandbox.Command{Type: sandbox.CommandRun, Code: source})
	if err != nil {
		return err
	}
	for _, e := range result.Events {
		if e.Type == sandbox.EventError {
			return errFailed
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	code, err := flagOrFile(cmd, "code", "code-file")
	if err != nil {
		return err
	}
	test, err := flagOrFile(cmd, "test", "test-file")
	if err != nil {
		return err
	}

	result, err := oneShot(cmd, sandbox.Command{Type: sandbox.CommandValidate, Code: code, TestCode: test})
	if err != nil {
		return err
	}
	if !result.Passed {
		return errFailed
	}
	return nil
}

func oneShot(cmd *cobra.Command, c sandbox.Command) (sandbox.Result, error) {
	deps, err := newAppDeps(cmd)
	if err != nil {
		return sandbox.Result{}, err
	}
	defer deps.Close()

	enc := sandbox.NewEncoder(cmd.OutOrStdout())
	result, err := sandbox.Run(cmd.Context(), newBootstrapper(deps.cfg, deps.exec), deps.analyzer, c,
		controllerOptions(deps.cfg, deps.log, enc)...)
	if err != nil {
		return result, errFailed
	}
	return result, enc.Err()
}

// flagOrFile returns the inline flag value, or the contents of the file
// flag when the inline one is empty.
func flagOrFile(cmd *cobra.Command, inline, file string) (string, error) {
	if v, _ := cmd.Flags().GetString(inline); v != "" {
		return v, nil
	}
	path, _ := cmd.Flags().GetString(file)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
