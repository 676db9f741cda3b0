package builder

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"slices"

	"al.essio.dev/pkg/shellescape"
	"github.com/qobs-build/cpproj/internal/msg"
)

// Invocation is a single compiler or archiver command line
type Invocation struct {
	Name string
	Args []string
}

// String renders the invocation the way it could be pasted into a shell
func (inv Invocation) String() string {
	return shellescape.QuoteCommand(append([]string{inv.Name}, inv.Args...))
}

// Runner runs tool invocations. Run blocks until the tool exits and returns
// a *ToolError if it couldn't be started or exited non-zero.
type Runner interface {
	Run(ctx context.Context, dir string, inv Invocation) error
}

// ExecRunner runs invocations as child processes, forwarding their output
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Stdout: &msg.IndentWriter{Indent: "  ", W: os.Stdout},
		Stderr: &msg.IndentWriter{Indent: "  ", W: os.Stderr},
	}
}

func (r *ExecRunner) Run(ctx context.Context, dir string, inv Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Name, slices.Clone(inv.Args)...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &ToolError{Invocation: inv, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &ToolError{Invocation: inv, ExitCode: -1, Err: err}
	}
	return nil
}
