package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// IsModuleFile reports whether path looks like a module source file.
func IsModuleFile(path string) bool {
	base := filepath.Base(path)
	return filepath.Ext(base) == ".go" &&
		!strings.HasSuffix(base, "_test.go") &&
		!strings.HasPrefix(base, ".") && !strings.HasPrefix(base, "_")
}

// Discover lists the module files directly inside dir plus the extra files,
// cleaned, deduplicated and sorted. A missing dir yields no files.
func Discover(dir string, extra []string) ([]string, error) {
	var files []string
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !IsModuleFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Clean(filepath.Join(dir, e.Name())))
		}
	}
	for _, f := range extra {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, filepath.Clean(f))
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
