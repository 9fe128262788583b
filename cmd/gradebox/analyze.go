package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Check code against the security policy without running it",
	Long: `Parse Python code and report blocked imports and calls as a JSON
verdict. The exit status is 1 if the code is unsafe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("code", "c", "", "Code to analyze")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args, "code")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	an, err := newAnalyzer(cfg)
	if err != nil {
		return err
	}

	verdict := an.Analyze(cmd.Context(), source)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	if err := enc.Encode(verdict); err != nil {
		return err
	}
	if !verdict.Safe {
		return errFailed
	}
	return nil
}
