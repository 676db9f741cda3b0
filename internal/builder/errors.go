package builder

import (
	"errors"
	"fmt"
)

var (
	ErrSourceRootMissing = errors.New("source root does not exist")
	errCantRunLib        = errors.New("can't run a library artifact, build with --executable")
)

// DiscoveryError is returned when the source root can't be scanned
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("source discovery in %s failed: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ToolError is returned when a compiler or archiver invocation fails, either
// because it couldn't be started or because it exited with a non-zero status
type ToolError struct {
	Invocation Invocation
	ExitCode   int
	Err        error
}

func (e *ToolError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with status %d", e.Invocation.Name, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Invocation.Name, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
