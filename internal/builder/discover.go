package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover returns every regular file under root (relative to dir) whose
// extension is ext, recursively. The returned paths are relative to dir and
// ordered the way the directory walk visits them.
func Discover(dir, root, ext string) ([]string, error) {
	rootPath := filepath.Join(dir, root)
	stat, err := os.Stat(rootPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DiscoveryError{Root: root, Err: ErrSourceRootMissing}
		}
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	if !stat.IsDir() {
		return nil, &DiscoveryError{Root: root, Err: fmt.Errorf("%s is not a directory", root)}
	}

	// the extension is compared literally, it is never part of the pattern
	var sources []string
	err = doublestar.GlobWalk(os.DirFS(rootPath), "**/*", func(match string, d fs.DirEntry) error {
		if path.Ext(match) == ext {
			sources = append(sources, filepath.Join(root, filepath.FromSlash(match)))
		}
		return nil
	}, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	return sources, nil
}
