package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/qobs-build/cpproj/internal/msg"
	"golang.org/x/sync/errgroup"
)

// Result describes a finished build
type Result struct {
	Artifact    string // relative to the project directory
	Invocations int
}

type Builder struct {
	cfg     *Config
	basedir string
	runner  Runner
	tc      Toolchain
}

func NewBuilderInDirectory(path string) (*Builder, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}

	cfg, err := LoadConfig(path, NewConfigEnv())
	if err != nil {
		return nil, err
	}

	tc := Toolchain{Compiler: cfg.Build.Compiler, Archiver: cfg.Build.Archiver}
	if tc.Compiler == "" {
		tc.Compiler = findCompiler()
	}
	if tc.Archiver == "" {
		tc.Archiver = findArchiver()
	}

	return &Builder{
		cfg:     cfg,
		basedir: path,
		runner:  NewExecRunner(),
		tc:      tc,
	}, nil
}

// vcpkgTriplet returns the vcpkg triplet of the host, e.g. x64-linux
func vcpkgTriplet() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}
	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "osx"
	}
	return arch + "-" + goos
}

// detectDepPrefix returns the local package manager prefix (relative to the
// project) if one has been installed, or an empty string
func (b *Builder) detectDepPrefix() string {
	prefix := filepath.Join(".vcpkg", "installed", vcpkgTriplet())
	if stat, err := os.Stat(filepath.Join(b.basedir, prefix, "include")); err == nil && stat.IsDir() {
		return prefix
	}
	return ""
}

// Build discovers the sources, composes the flags for opts and runs the
// toolchain. Any failing step aborts the build; later steps are not run.
func (b *Builder) Build(ctx context.Context, opts Options) (Result, error) {
	var res Result

	sources, err := Discover(b.basedir, b.cfg.Target.Sources, b.cfg.Target.Extension)
	if err != nil {
		return res, err
	}
	if len(sources) == 0 {
		msg.Warn("no %s files found in %s, the artifact will be empty", b.cfg.Target.Extension, b.cfg.Target.Sources)
	}

	plan := Compose(opts, b.cfg, b.tc, b.detectDepPrefix(), sources)

	msg.Info("building %s (%s) from %d source files", b.cfg.Package.Name, opts, len(sources))

	if err := os.MkdirAll(filepath.Join(b.basedir, plan.OutputDir), 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}
	for _, obj := range plan.Objects {
		if err := os.MkdirAll(filepath.Join(b.basedir, filepath.Dir(obj)), 0o755); err != nil {
			return res, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	n, err := b.compile(ctx, plan.Compile)
	res.Invocations += n
	if err != nil {
		return res, fmt.Errorf("compilation failed: %w", err)
	}

	if opts.Kind == StaticLibrary {
		// ar would otherwise keep members of sources that no longer exist
		if err := os.Remove(filepath.Join(b.basedir, plan.Artifact)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("failed to remove old archive: %w", err)
		}
	}

	res.Invocations++
	if err := b.run(ctx, plan.Link); err != nil {
		if opts.Kind == StaticLibrary {
			return res, fmt.Errorf("archiving failed: %w", err)
		}
		return res, fmt.Errorf("linking failed: %w", err)
	}

	res.Artifact = plan.Artifact
	return res, nil
}

func (b *Builder) run(ctx context.Context, inv Invocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.Exec(inv.String())
	return b.runner.Run(ctx, b.basedir, inv)
}

// compile runs the per-object compile steps, at most cfg.Build.Jobs at a time.
// It returns once every started step has finished.
func (b *Builder) compile(ctx context.Context, jobs []Invocation) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	var bar *msg.ProgressBar
	if len(jobs) > 1 && msg.IsTerminal(os.Stdout) {
		bar = msg.NewProgressBar(len(jobs), "compiling", os.Stdout)
		bar.Show()
		defer bar.Finish()
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(b.cfg.Build.Jobs, 1))

	started := make(chan struct{}, len(jobs))
	for _, job := range jobs {
		eg.Go(func() error {
			// a previous step failed, skip the rest
			if err := gctx.Err(); err != nil {
				return err
			}
			started <- struct{}{}
			if err := b.run(gctx, job); err != nil {
				return err
			}
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}

	err := eg.Wait()
	return len(started), err
}

// BuildAndRun builds an executable and runs it with args
func (b *Builder) BuildAndRun(ctx context.Context, opts Options, args []string) error {
	if opts.Kind != Executable {
		return errCantRunLib
	}

	res, err := b.Build(ctx, opts)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, filepath.Join(b.basedir, res.Artifact), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
