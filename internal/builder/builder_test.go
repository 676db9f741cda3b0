package builder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/qobs-build/cpproj/internal/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoFileProject(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "demo")
	writeTree(t, dir, map[string]string{
		"src/a.cpp":         "int a() { return 1; }\n",
		"src/b.cpp":         "int b() { return 2; }\n",
		"include/demo.hpp":  "#pragma once\n",
		"src/notes.txt":     "not a source\n",
		"src/deep/er/c.cpp": "int c() { return 3; }\n",
	})
	return dir
}

// captureOutput redirects msg output for the duration of the test
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr := msg.Stdout, msg.Stderr
	msg.Stdout, msg.Stderr = &buf, &buf
	t.Cleanup(func() { msg.Stdout, msg.Stderr = oldOut, oldErr })
	return &buf
}

func TestBuild_AllCombinations(t *testing.T) {
	for _, profile := range []Profile{ProfileDebug, ProfileRelease} {
		for _, kind := range []ArtifactKind{Executable, StaticLibrary, DynamicLibrary} {
			opts := Options{Profile: profile, Kind: kind}
			t.Run(opts.String(), func(t *testing.T) {
				captureOutput(t)
				dir := twoFileProject(t)
				runner := &fakeRunner{outDir: OutputDir(profile)}
				b := newTestBuilder(t, dir, runner)

				res, err := b.Build(context.Background(), opts)
				require.NoError(t, err)

				want := filepath.Join("build", string(profile), ArtifactName(kind, "demo"))
				assert.Equal(t, want, res.Artifact)
				assert.FileExists(t, filepath.Join(dir, want))
				assert.False(t, runner.outDirMissing, "a tool ran before the output directory existed")

				calls := runner.Calls()
				assert.Equal(t, len(calls), res.Invocations)
				if kind == StaticLibrary {
					assert.Len(t, calls, 3+1)
					assert.Equal(t, "ar", calls[len(calls)-1].Name)
				} else {
					assert.Len(t, calls, 1)
				}
			})
		}
	}
}

func TestBuild_CompilesExactlyDiscoveredSources(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), Options{ProfileDebug, Executable})
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	var compiled []string
	for _, arg := range calls[0].Args {
		if strings.HasSuffix(arg, ".cpp") {
			compiled = append(compiled, arg)
		}
	}
	assert.ElementsMatch(t, []string{
		filepath.Join("src", "a.cpp"),
		filepath.Join("src", "b.cpp"),
		filepath.Join("src", "deep", "er", "c.cpp"),
	}, compiled)
}

func TestBuild_EchoesEveryInvocation(t *testing.T) {
	out := captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), Options{ProfileRelease, StaticLibrary})
	require.NoError(t, err)

	for _, inv := range runner.Calls() {
		assert.Contains(t, out.String(), inv.String())
	}
}

func TestBuild_StaticFailureSkipsArchive(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{
		fail: func(inv Invocation) bool {
			return slices.Contains(inv.Args, filepath.Join("src", "b.cpp"))
		},
	}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), Options{ProfileDebug, StaticLibrary})
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.Contains(t, err.Error(), "compilation failed")

	for _, inv := range runner.Calls() {
		assert.NotEqual(t, "ar", inv.Name, "archiver must not run after a failed compile")
	}
	assert.NoFileExists(t, filepath.Join(dir, "build", "debug", "libdemo.a"))
}

func TestBuild_StaticFailureStopsRemainingCompiles(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{
		fail: func(inv Invocation) bool {
			return slices.Contains(inv.Args, filepath.Join("src", "a.cpp"))
		},
	}
	b := newTestBuilder(t, dir, runner)

	res, err := b.Build(context.Background(), Options{ProfileDebug, StaticLibrary})
	require.Error(t, err)

	// jobs = 1: the first failure is the last invocation
	calls := runner.Calls()
	require.NotEmpty(t, calls)
	assert.True(t, slices.Contains(calls[len(calls)-1].Args, filepath.Join("src", "a.cpp")))
	assert.Equal(t, len(calls), res.Invocations)
}

func TestBuild_ParallelStatic(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	writeTree(t, dir, map[string]string{ManifestFilename: "[build]\njobs = 4\n"})
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	res, err := b.Build(context.Background(), Options{ProfileRelease, StaticLibrary})
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "ar", calls[3].Name, "archive runs after every compile step")
	assert.FileExists(t, filepath.Join(dir, res.Artifact))
}

func TestBuild_StaticKeepsLookalikeSources(t *testing.T) {
	captureOutput(t)
	dir := filepath.Join(t.TempDir(), "demo")
	writeTree(t, dir, map[string]string{
		"src/a.b.cpp":    "int x() { return 1; }\n",
		"src/a/b.cpp":    "int y() { return 2; }\n",
		ManifestFilename: "[build]\njobs = 4\n",
	})
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), Options{ProfileDebug, StaticLibrary})
	require.NoError(t, err)

	out := filepath.Join("build", "debug")
	assert.FileExists(t, filepath.Join(dir, out, "a.b.o"))
	assert.FileExists(t, filepath.Join(dir, out, "a", "b.o"))

	calls := runner.Calls()
	archive := calls[len(calls)-1]
	assert.ElementsMatch(t, []string{
		filepath.Join(out, "a.b.o"),
		filepath.Join(out, "a", "b.o"),
	}, archive.Args[2:])
}

func TestBuild_LinkFailure(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{fail: func(Invocation) bool { return true }}
	b := newTestBuilder(t, dir, runner)

	res, err := b.Build(context.Background(), Options{ProfileRelease, DynamicLibrary})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linking failed")
	assert.Empty(t, res.Artifact)
}

func TestBuild_MissingSourceRoot(t *testing.T) {
	captureOutput(t)
	dir := t.TempDir()
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), DefaultOptions())
	require.ErrorIs(t, err, ErrSourceRootMissing)
	assert.Empty(t, runner.Calls())
	assert.NoDirExists(t, filepath.Join(dir, "build"))
}

func TestBuild_EmptySourceSetWarns(t *testing.T) {
	out := captureOutput(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	b := newTestBuilder(t, dir, &fakeRunner{})

	_, err := b.Build(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no .cpp files found")
}

func TestBuild_Idempotent(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)

	for _, opts := range []Options{
		{ProfileDebug, Executable},
		{ProfileRelease, StaticLibrary},
		{ProfileRelease, DynamicLibrary},
	} {
		for i := range 2 {
			b := newTestBuilder(t, dir, &fakeRunner{})
			res, err := b.Build(context.Background(), opts)
			require.NoError(t, err, "run %d of %s", i+1, opts)
			assert.FileExists(t, filepath.Join(dir, res.Artifact))
		}
	}
}

func TestBuild_StaleArchiveReplaced(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	archive := filepath.Join(dir, "build", "debug", "libdemo.a")
	writeTree(t, dir, map[string]string{"build/debug/libdemo.a": "stale"})

	var sawArchive bool
	runner := &fakeRunner{fail: func(inv Invocation) bool {
		if inv.Name == "ar" {
			_, err := os.Stat(archive)
			sawArchive = err == nil
		}
		return false
	}}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), Options{ProfileDebug, StaticLibrary})
	require.NoError(t, err)
	assert.False(t, sawArchive, "old archive must be removed before archiving")
}

func TestBuild_DependencyPrefix(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	prefix := filepath.Join(".vcpkg", "installed", vcpkgTriplet())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, prefix, "include"), 0o755))
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	_, err := b.Build(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, runner.Calls()[0].Args, "-I"+filepath.Join(prefix, "include"))
}

func TestBuild_Cancelled(t *testing.T) {
	captureOutput(t)
	dir := twoFileProject(t)
	runner := &fakeRunner{}
	b := newTestBuilder(t, dir, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.Calls())
}

func TestBuildAndRun_Library(t *testing.T) {
	b := newTestBuilder(t, twoFileProject(t), &fakeRunner{})
	err := b.BuildAndRun(context.Background(), Options{ProfileDebug, DynamicLibrary}, nil)
	require.ErrorIs(t, err, errCantRunLib)
}

// programCompiler "links" a shell script that records its arguments next to
// itself and exits with $EXIT_WITH
const programCompiler = `out=""
prev=""
for a in "$@"; do
	if [ "$prev" = "-o" ]; then out="$a"; fi
	prev="$a"
done
printf '#!/bin/sh\necho "$@" > "$0.args"\nexit ${EXIT_WITH:-0}\n' > "$out"
chmod +x "$out"
`

func TestBuildAndRun_Executable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	captureOutput(t)
	cc := writeScript(t, t.TempDir(), "cc.sh", programCompiler)
	dir := twoFileProject(t)
	writeTree(t, dir, map[string]string{ManifestFilename: "[build]\ncompiler = '" + cc + "'\n"})

	b, err := NewBuilderInDirectory(dir)
	require.NoError(t, err)
	b.runner = &ExecRunner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	require.NoError(t, b.BuildAndRun(context.Background(), Options{ProfileRelease, Executable}, []string{"x", "y z"}))
	args, err := os.ReadFile(filepath.Join(dir, "build", "release", "demo.args"))
	require.NoError(t, err)
	assert.Equal(t, "x y z\n", string(args))

	// the program's exit status comes back unchanged
	t.Setenv("EXIT_WITH", "3")
	err = b.BuildAndRun(context.Background(), Options{ProfileRelease, Executable}, nil)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

// writeScript writes an executable shell script standing in for a tool
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeCompiler writes "ok" to the -o output and fails on sources containing BROKEN
const fakeCompiler = `out=""
prev=""
for a in "$@"; do
	if [ "$prev" = "-o" ]; then out="$a"; fi
	case "$a" in
	*.cpp)
		if grep -q BROKEN "$a"; then echo "$a: error: BROKEN" >&2; exit 1; fi
		;;
	esac
	prev="$a"
done
[ -n "$out" ] && echo ok > "$out"
`

// fakeArchiver concatenates the objects into the archive
const fakeArchiver = `shift
out="$1"
shift
cat "$@" > "$out"
`

func TestBuild_RealProcesses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	captureOutput(t)
	tools := t.TempDir()
	cc := writeScript(t, tools, "cc.sh", fakeCompiler)
	ar := writeScript(t, tools, "ar.sh", fakeArchiver)

	dir := twoFileProject(t)
	writeTree(t, dir, map[string]string{ManifestFilename: "[build]\ncompiler = '" + cc + "'\narchiver = '" + ar + "'\n"})

	b, err := NewBuilderInDirectory(dir)
	require.NoError(t, err)
	b.runner = &ExecRunner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	res, err := b.Build(context.Background(), Options{ProfileRelease, StaticLibrary})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("build", "release", "libdemo.a"), res.Artifact)

	data, err := os.ReadFile(filepath.Join(dir, res.Artifact))
	require.NoError(t, err)
	assert.Equal(t, "ok\nok\nok\n", string(data))

	// object files stay next to the archive
	assert.FileExists(t, filepath.Join(dir, "build", "release", "a.o"))
	assert.FileExists(t, filepath.Join(dir, "build", "release", "deep", "er", "c.o"))

	// break one file: the archive must not be produced again
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "build")))
	writeTree(t, dir, map[string]string{"src/b.cpp": "BROKEN\n"})

	_, err = b.Build(context.Background(), Options{ProfileRelease, StaticLibrary})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, cc, toolErr.Invocation.Name)
	assert.Equal(t, 1, toolErr.ExitCode)
	assert.NoFileExists(t, filepath.Join(dir, "build", "release", "libdemo.a"))
}
