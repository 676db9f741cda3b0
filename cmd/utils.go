package cmd

import (
	"errors"
	"os/exec"

	"github.com/qobs-build/cpproj/internal/builder"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// exitCode maps an error to the process exit status. Failures of the driver
// itself are always ExitFailure; `run` forwards the status of the program it ran.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var toolErr *builder.ToolError
	if errors.As(err, &toolErr) {
		return ExitFailure
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return ExitFailure
}

// addHelpFlag replaces cobra's default --help/-h with a long-only --help,
// inherited by every subcommand
func addHelpFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help", false, "Show this help message")
}
