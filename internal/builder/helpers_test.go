package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTree creates files (path -> content) below root
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// fakeRunner records invocations and creates the file each one would produce
type fakeRunner struct {
	mu    sync.Mutex
	calls []Invocation
	// fail makes an invocation exit with status 1
	fail func(inv Invocation) bool
	// outDirMissing is set if a call ran before build/<profile> existed
	outDirMissing bool
	outDir        string
}

func (r *fakeRunner) Run(ctx context.Context, dir string, inv Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	if r.outDir != "" {
		if _, err := os.Stat(filepath.Join(dir, r.outDir)); err != nil {
			r.outDirMissing = true
		}
	}
	r.mu.Unlock()

	if r.fail != nil && r.fail(inv) {
		return &ToolError{Invocation: inv, ExitCode: 1, Err: errors.New("exit status 1")}
	}
	if out := outputOf(inv); out != "" {
		return os.WriteFile(filepath.Join(dir, out), []byte(inv.String()), 0o644)
	}
	return nil
}

func (r *fakeRunner) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func outputOf(inv Invocation) string {
	if len(inv.Args) >= 2 && inv.Args[0] == "rcs" {
		return inv.Args[1]
	}
	if i := slices.Index(inv.Args, "-o"); i >= 0 && i+1 < len(inv.Args) {
		return inv.Args[i+1]
	}
	return ""
}

func newTestBuilder(t *testing.T, dir string, runner Runner) *Builder {
	t.Helper()
	cfg, err := LoadConfig(dir, NewConfigEnv())
	require.NoError(t, err)
	return &Builder{
		cfg:     cfg,
		basedir: dir,
		runner:  runner,
		tc:      Toolchain{Compiler: "c++", Archiver: "ar"},
	}
}
