// Package scaffold creates new C++ project trees that the build driver can build.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/go-git/go-git/v6"
	"github.com/google/renameio/v2"
	"github.com/qobs-build/cpproj/internal/builder"
	"github.com/qobs-build/cpproj/internal/msg"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

var ErrExists = errors.New("directory already exists")

// reservedNames can't name the generated namespace: C++ keywords, and main
// which would also collide with src/main.cpp
var reservedNames = map[string]bool{
	"main": true,

	"alignas": true, "alignof": true, "and": true, "and_eq": true, "asm": true,
	"auto": true, "bitand": true, "bitor": true, "bool": true, "break": true,
	"case": true, "catch": true, "char": true, "char8_t": true, "char16_t": true,
	"char32_t": true, "class": true, "compl": true, "concept": true, "const": true,
	"consteval": true, "constexpr": true, "constinit": true, "const_cast": true,
	"continue": true, "co_await": true, "co_return": true, "co_yield": true,
	"decltype": true, "default": true, "delete": true, "do": true, "double": true,
	"dynamic_cast": true, "else": true, "enum": true, "explicit": true,
	"export": true, "extern": true, "false": true, "float": true, "for": true,
	"friend": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "mutable": true, "namespace": true, "new": true,
	"noexcept": true, "not": true, "not_eq": true, "nullptr": true,
	"operator": true, "or": true, "or_eq": true, "private": true,
	"protected": true, "public": true, "register": true,
	"reinterpret_cast": true, "requires": true, "return": true, "short": true,
	"signed": true, "sizeof": true, "static": true, "static_assert": true,
	"static_cast": true, "struct": true, "switch": true, "template": true,
	"this": true, "thread_local": true, "throw": true, "true": true, "try": true,
	"typedef": true, "typeid": true, "typename": true, "union": true,
	"unsigned": true, "using": true, "virtual": true, "void": true,
	"volatile": true, "wchar_t": true, "while": true, "xor": true, "xor_eq": true,
}

// Data is what templates (and template paths) can refer to
type Data struct {
	Name  string // project name as given by the user
	Ident string // Name sanitized into a C++ identifier
}

// File is one generated file: Path is itself a template, Template names the
// embedded template holding its content
type File struct {
	Role     string
	Path     string
	Template string
}

var Files = []File{
	{Role: "manifest", Path: builder.ManifestFilename, Template: "Project.toml.tmpl"},
	{Role: "main", Path: "src/main.cpp", Template: "main.cpp.tmpl"},
	{Role: "header", Path: "include/{{.Ident}}.hpp", Template: "header.hpp.tmpl"},
	{Role: "source", Path: "src/{{.Ident}}.cpp", Template: "impl.cpp.tmpl"},
	{Role: "test", Path: "tests/test_main.cpp", Template: "test_main.cpp.tmpl"},
	{Role: "gitignore", Path: ".gitignore", Template: "gitignore.tmpl"},
}

var Dirs = []string{
	"include",
	"src",
	"tests",
	filepath.Join("build", "debug"),
	filepath.Join("build", "release"),
}

type Options struct {
	Git bool // initialize a git repository
}

func NewData(name string) Data {
	return Data{Name: name, Ident: builder.SanitizeName(name)}
}

// Validate reports whether data can be turned into a project
func (d Data) Validate() error {
	if d.Ident == "" {
		return errors.New("project name is empty")
	}
	if reservedNames[d.Ident] {
		return fmt.Errorf("project name %q is reserved in C++, pick another one", d.Ident)
	}
	return nil
}

// render executes t with data; it is the one place template text is expanded
func render(t *template.Template, data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Render returns the path (relative to the project) and content of f
func (f File) Render(data Data) (path, content string, err error) {
	pathTmpl, err := template.New(f.Role).Parse(f.Path)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse path template %q: %w", f.Path, err)
	}
	if path, err = render(pathTmpl, data); err != nil {
		return "", "", err
	}

	t := templates.Lookup(f.Template)
	if t == nil {
		return "", "", fmt.Errorf("no template named %s", f.Template)
	}
	if content, err = render(t, data); err != nil {
		return "", "", err
	}
	return filepath.FromSlash(path), content, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// New creates a project in a new directory at path. The project name is the
// last element of the path. It fails if path already exists; a partially
// created tree is left in place if a later step fails.
func New(path string, opts Options) (Data, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return Data{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return Data{}, fmt.Errorf("%s: %w", path, ErrExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Data{}, err
	}

	base := filepath.Base(filepath.Clean(path))
	data := NewData(strings.TrimSuffix(base, filepath.Ext(base)))
	if err := data.Validate(); err != nil {
		return data, err
	}
	if err := mkdir(path); err != nil {
		return data, err
	}
	return data, generate(path, data, opts, true)
}

// Init creates a project named name inside the existing directory dir.
// Files that already exist are kept as they are.
func Init(dir, name string, opts Options) (Data, error) {
	dir, err := ExpandHome(dir)
	if err != nil {
		return Data{}, err
	}
	stat, err := os.Stat(dir)
	if err != nil {
		return Data{}, err
	}
	if !stat.IsDir() {
		return Data{}, fmt.Errorf("%s is not a directory", dir)
	}

	data := NewData(name)
	if err := data.Validate(); err != nil {
		return data, err
	}
	return data, generate(dir, data, opts, false)
}

func generate(dir string, data Data, opts Options, fresh bool) error {
	for _, d := range Dirs {
		if err := mkdir(dir, d); err != nil {
			return err
		}
	}

	for _, f := range Files {
		rel, content, err := f.Render(data)
		if err != nil {
			return err
		}
		if err := writefile(filepath.Join(dir, rel), content, fresh); err != nil {
			return err
		}
	}

	if opts.Git {
		if _, err := git.PlainInit(dir, false); err != nil {
			if errors.Is(err, git.ErrTargetDirNotEmpty) {
				return nil
			}
			return fmt.Errorf("git init %s: %w", dir, err)
		}
		msg.Created("repository", filepath.ToSlash(dir))
	}
	return nil
}

func mkdir(elem ...string) error {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	msg.Created("directory", filepath.ToSlash(path))
	return nil
}

// writefile writes content to path atomically. Unless overwrite is set an
// existing file is left untouched.
func writefile(path, content string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := renameio.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	msg.Created("file", filepath.ToSlash(path))
	return nil
}
