package builder

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// Profile selects between the debug and release flag sets
type Profile string

const (
	ProfileDebug   Profile = "debug"
	ProfileRelease Profile = "release"
)

// ArtifactKind is the kind of file a build produces
type ArtifactKind string

const (
	Executable     ArtifactKind = "executable"
	StaticLibrary  ArtifactKind = "static"
	DynamicLibrary ArtifactKind = "dynamic"
)

// Options is the build configuration chosen on the command line
type Options struct {
	Profile Profile
	Kind    ArtifactKind
}

func DefaultOptions() Options {
	return Options{Profile: ProfileDebug, Kind: Executable}
}

func (o Options) String() string {
	return fmt.Sprintf("%s, %s", o.Profile, o.Kind)
}

// choice is a bool-looking flag that stores a fixed value into a shared
// destination when it is set. Several choices bound to the same destination
// behave as mutually exclusive flags where the last one on the command line wins.
type choice[T ~string] struct {
	dst *T
	val T
}

func (c *choice[T]) String() string {
	if c.dst != nil && *c.dst == c.val {
		return "true"
	}
	return "false"
}

func (c *choice[T]) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*c.dst = c.val
	}
	return nil
}

func (c *choice[T]) Type() string     { return "bool" }
func (c *choice[T]) IsBoolFlag() bool { return true }

func addChoice[T ~string](fs *pflag.FlagSet, dst *T, val T, name, usage string) {
	f := fs.VarPF(&choice[T]{dst: dst, val: val}, name, "", usage)
	f.NoOptDefVal = "true"
	f.DefValue = "false"
}

// BindFlags registers the long-only build flags on fs. Parsing fs writes the
// selected profile and artifact kind into opts.
func BindFlags(fs *pflag.FlagSet, opts *Options) {
	BindProfileFlags(fs, &opts.Profile)
	addChoice(fs, &opts.Kind, Executable, "executable", "Build a statically linked executable (default)")
	addChoice(fs, &opts.Kind, StaticLibrary, "static", "Build a static library (lib<name>.a)")
	addChoice(fs, &opts.Kind, DynamicLibrary, "dynamic", "Build a shared library (lib<name>.so)")
}

// BindProfileFlags registers only --debug and --release
func BindProfileFlags(fs *pflag.FlagSet, p *Profile) {
	addChoice(fs, p, ProfileDebug, "debug", "Build with debug symbols and no optimization (default)")
	addChoice(fs, p, ProfileRelease, "release", "Build with full optimization")
}
