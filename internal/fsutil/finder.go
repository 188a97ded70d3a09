// Package fsutil provides file system utility functions for run artifacts.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFiles walks root and returns the paths of the regular files whose base
// name satisfies match, sorted. Temporary files left behind by an interrupted
// WriteFileAtomic are never matched.
func FindFiles(root string, match func(name string) bool) ([]string, error) {
	if match == nil {
		panic("fsutil: nil match function")
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir(), isTemp(d.Name()):
			return nil
		case match(d.Name()):
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".")
}
