package builder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

// ManifestFilename is the per-project configuration file read by the driver
const ManifestFilename = "Project.toml"

const (
	defaultStd       = "c++23"
	defaultSourceDir = "src"
	defaultExtension = ".cpp"
	defaultIncludes  = "include"
)

type Config struct {
	Package PackageSection            `toml:"package"`
	Target  TargetSection             `toml:"target"`
	Profile map[string]ProfileSection `toml:"profile"`
	Build   BuildSection              `toml:"build"`
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Authors     []string `toml:"authors"`
}

// TargetSection defines the [target(.*)] section
type TargetSection struct {
	Std           string            `toml:"std"`
	Sources       string            `toml:"sources"`
	Extension     string            `toml:"extension"`
	Include       []string          `toml:"include"`
	Defines       map[string]string `toml:"defines"`
	Cflags        []string          `toml:"cflags"`
	Ldflags       []string          `toml:"ldflags"`
	Links         []string          `toml:"links"`
	StaticRuntime *bool             `toml:"static-runtime"`
}

// ProfileSection defines the [profile.*] section. Its flags are appended to
// the built-in flags of the matching profile.
type ProfileSection struct {
	Cflags  []string `toml:"cflags"`
	Ldflags []string `toml:"ldflags"`
}

// BuildSection defines the [build] section
type BuildSection struct {
	Compiler string `toml:"compiler"`
	Archiver string `toml:"archiver"`
	Jobs     int    `toml:"jobs"`
}

// ManifestError is returned when Project.toml can't be read or understood
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// SanitizeName turns an arbitrary directory name into a C++ identifier:
// every character that isn't a letter, digit or underscore becomes an
// underscore, and a leading digit gets an underscore prepended.
func SanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	s := sb.String()
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

func (c *Config) applyDefaults(dir string) {
	if c.Package.Name == "" {
		base := filepath.Base(dir)
		c.Package.Name = SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if c.Target.Std == "" {
		c.Target.Std = defaultStd
	}
	if c.Target.Sources == "" {
		c.Target.Sources = defaultSourceDir
	}
	if c.Target.Extension == "" {
		c.Target.Extension = defaultExtension
	}
	if !strings.HasPrefix(c.Target.Extension, ".") {
		c.Target.Extension = "." + c.Target.Extension
	}
	if c.Target.Include == nil {
		c.Target.Include = []string{defaultIncludes}
	}
	if c.Target.StaticRuntime == nil {
		on := true
		c.Target.StaticRuntime = &on
	}
	if c.Build.Jobs == 0 {
		c.Build.Jobs = 1
	}
}

func (c *Config) validate() error {
	if c.Package.Name == "" {
		return errors.New("package name is empty")
	}
	if strings.ContainsAny(c.Package.Name, `/\`) {
		return fmt.Errorf("package name %q must not contain path separators", c.Package.Name)
	}
	if c.Build.Jobs < 0 {
		return fmt.Errorf("build.jobs must be positive, got %d", c.Build.Jobs)
	}
	for name := range c.Profile {
		if Profile(name) != ProfileDebug && Profile(name) != ProfileRelease {
			return fmt.Errorf("unknown profile %q, known profiles: %s, %s", name, ProfileDebug, ProfileRelease)
		}
	}
	return nil
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func remarshal(data any, dst any) error {
	b, err := toml.Marshal(data)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, dst)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := remarshal(data, dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection parses a section whose sub-tables may be keyed by
// an expression, e.g. [target.'target_os == "linux"']. Sub-tables whose
// expression evaluates to true are merged on top of the base fields.
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			if _, err := expr.Compile(key, expr.Env(env), expr.AsBool()); err == nil {
				conditionalFields[key] = subMap
				continue
			}
		}
		baseFields[key] = val
	}

	if len(baseFields) > 0 {
		if err := remarshal(baseFields, dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// evaluate in a fixed order so that merges are reproducible
	expressions := make([]string, 0, len(conditionalFields))
	for k := range conditionalFields {
		expressions = append(expressions, k)
	}
	slices.Sort(expressions)

	for _, expression := range expressions {
		matched, err := evalBool(expression, env)
		if err != nil {
			return fmt.Errorf("[%s.%q]: %w", name, expression, err)
		}
		if !matched {
			continue
		}

		var condSection T
		if err := remarshal(conditionalFields[expression], &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

func evalBool(expression string, env ConfigEnv) (bool, error) {
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("failed to compile expression: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to run expression: %w", err)
	}
	matched, _ := result.(bool)
	return matched, nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, m := range matches {
		builder.WriteString(s[lastIndex:m[0]])

		expression := strings.TrimSpace(s[m[2]:m[3]])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		fmt.Fprintf(&builder, "%v", result)
		lastIndex = m[1]
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// ParseConfig parses a manifest. Defaults are not applied.
func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}
	if rawConfig == nil {
		rawConfig = map[string]any{}
	}

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	cfg := new(Config)

	if err := unmarshalSection(rawConfig, "package", &cfg.Package); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "target", &cfg.Target, env); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "profile", &cfg.Profile); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "build", &cfg.Build, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig reads Project.toml from dir. A missing manifest is not an error:
// the returned config then only carries defaults, with the package name
// derived from the directory name.
func LoadConfig(dir string, env ConfigEnv) (*Config, error) {
	path := filepath.Join(dir, ManifestFilename)

	cfg := new(Config)
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, &ManifestError{Path: path, Err: err}
	default:
		defer f.Close()
		cfg, err = ParseConfig(bufio.NewReader(f), env)
		if err != nil {
			return nil, &ManifestError{Path: path, Err: err}
		}
	}

	cfg.applyDefaults(dir)
	if err := cfg.validate(); err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	return cfg, nil
}

// ConfigEnv is the environment manifest expressions are evaluated in
type ConfigEnv struct {
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
}

func NewConfigEnv() ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			environ[k] = v
		}
	}

	return ConfigEnv{
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
	}
}
