package builder

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

const buildDirName = "build"

// Toolchain names the programs a plan invokes
type Toolchain struct {
	Compiler string
	Archiver string
}

// Plan is everything needed to produce one artifact. Compile holds the
// per-object compile steps of the static library path and is empty otherwise;
// Link is the final step: the combined compile+link call or the archive call.
type Plan struct {
	OutputDir string
	Artifact  string
	Cflags    []string
	Ldflags   []string
	Objects   []string
	Compile   []Invocation
	Link      Invocation
}

func profileCflags(p Profile) []string {
	if p == ProfileRelease {
		return []string{"-O3", "-DNDEBUG"}
	}
	return []string{"-g", "-O0", "-DDEBUG"}
}

// ArtifactName returns the file name of the artifact kind for the named project
func ArtifactName(kind ArtifactKind, name string) string {
	switch kind {
	case StaticLibrary:
		return "lib" + name + ".a"
	case DynamicLibrary:
		return "lib" + name + ".so"
	default:
		return name
	}
}

// OutputDir is the directory artifacts of the given profile are written to
func OutputDir(p Profile) string {
	return filepath.Join(buildDirName, string(p))
}

// objectName maps a source file to the object file it compiles to, relative
// to the output directory. The tree below the source root is mirrored so that
// distinct sources never share an object.
func objectName(sourceRoot, src string) string {
	rel, err := filepath.Rel(sourceRoot, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(src)
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ".o"
}

// Compose computes the compiler and linker flags and the tool invocations for
// one build. It only looks at its arguments; depPrefix is the optional local
// dependency prefix (containing include/ and lib/) and may be empty.
func Compose(opts Options, cfg *Config, tc Toolchain, depPrefix string, sources []string) Plan {
	outDir := OutputDir(opts.Profile)
	plan := Plan{
		OutputDir: outDir,
		Artifact:  filepath.Join(outDir, ArtifactName(opts.Kind, cfg.Package.Name)),
	}

	// compiler flags
	cflags := profileCflags(opts.Profile)
	cflags = append(cflags, "-std="+cfg.Target.Std, "-Wall", "-Wextra", "-Wpedantic")
	for _, dir := range cfg.Target.Include {
		cflags = append(cflags, "-I"+dir)
	}
	if depPrefix != "" {
		cflags = append(cflags, "-I"+filepath.Join(depPrefix, "include"))
	}
	for _, define := range slices.Sorted(maps.Keys(cfg.Target.Defines)) {
		if v := cfg.Target.Defines[define]; v != "" {
			cflags = append(cflags, "-D"+define+"="+v)
		} else {
			cflags = append(cflags, "-D"+define)
		}
	}
	cflags = append(cflags, cfg.Target.Cflags...)
	cflags = append(cflags, cfg.Profile[string(opts.Profile)].Cflags...)

	// linker flags
	var ldflags []string
	if depPrefix != "" {
		ldflags = append(ldflags, "-L"+filepath.Join(depPrefix, "lib"))
	}
	ldflags = append(ldflags, cfg.Target.Ldflags...)
	ldflags = append(ldflags, cfg.Profile[string(opts.Profile)].Ldflags...)
	for _, lib := range cfg.Target.Links {
		ldflags = append(ldflags, "-l"+lib)
	}

	switch opts.Kind {
	case StaticLibrary:
		for _, src := range sources {
			obj := filepath.Join(outDir, objectName(cfg.Target.Sources, src))
			plan.Objects = append(plan.Objects, obj)

			args := slices.Clone(cflags)
			args = append(args, "-c", src, "-o", obj)
			plan.Compile = append(plan.Compile, Invocation{Name: tc.Compiler, Args: args})
		}
		args := []string{"rcs", plan.Artifact}
		args = append(args, plan.Objects...)
		plan.Link = Invocation{Name: tc.Archiver, Args: args}

	case DynamicLibrary:
		cflags = append(cflags, "-fPIC")
		ldflags = append(ldflags, "-shared")
		plan.Link = combined(tc.Compiler, cflags, sources, ldflags, plan.Artifact)

	default:
		if cfg.Target.StaticRuntime == nil || *cfg.Target.StaticRuntime {
			ldflags = append(ldflags, "-static")
		}
		plan.Link = combined(tc.Compiler, cflags, sources, ldflags, plan.Artifact)
	}

	plan.Cflags = cflags
	plan.Ldflags = ldflags
	return plan
}

// combined builds a single compile+link call over all sources
func combined(cc string, cflags, sources, ldflags []string, out string) Invocation {
	args := make([]string, 0, len(cflags)+len(sources)+len(ldflags)+2)
	args = append(args, cflags...)
	args = append(args, sources...)
	args = append(args, ldflags...)
	args = append(args, "-o", out)
	return Invocation{Name: cc, Args: args}
}
