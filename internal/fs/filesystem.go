package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sag-go/internal/sag"
)

// OSFileSystem implements sag.FileSystem on the real filesystem.
type OSFileSystem struct {
	ignore []string
}

var _ sag.FileSystem = (*OSFileSystem)(nil)

// NewOSFileSystem creates a filesystem whose listings skip ignorePatterns in
// addition to any patterns in a root's .sagignore.
func NewOSFileSystem(ignorePatterns []string) *OSFileSystem {
	return &OSFileSystem{ignore: ignorePatterns}
}

func (m *OSFileSystem) DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (m *OSFileSystem) CreateDirectory(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: creating directory %s: %v", sag.ErrFileSystem, path, err)
	}
	return nil
}

// ListFiles walks root and returns the absolute paths of regular files whose
// extension filter allows them. Symlinks and special files are skipped;
// ignored directories are not descended into. Subdirectories that cannot be
// read are reported in unreadable and skipped.
func (m *OSFileSystem) ListFiles(root string, filter *sag.ExtensionFilter) ([]string, []sag.ItemError, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolving %s: %v", sag.ErrFileSystem, root, err)
	}
	if !m.DirectoryExists(absRoot) {
		return nil, nil, fmt.Errorf("%w: not a directory: %s", sag.ErrFileSystem, absRoot)
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", sag.ErrFileSystem, err)
	}
	patterns := append(append(append([]string(nil), defaultIgnorePatterns...), m.ignore...), fromFile...)
	matcher := NewIgnoreMatcher(patterns)

	var paths []string
	var unreadable []sag.ItemError
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			unreadable = append(unreadable, sag.ItemError{
				Path: p,
				Err:  fmt.Errorf("%w: reading %s: %v", sag.ErrFileSystem, p, err),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		if matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if filter.Allowed(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: walking %s: %v", sag.ErrFileSystem, absRoot, err)
	}
	return paths, unreadable, nil
}

func (m *OSFileSystem) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", sag.ErrFileSystem, path, err)
	}
	return data, nil
}

func (m *OSFileSystem) WriteFile(path string, data []byte) error {
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", sag.ErrFileSystem, err)
	}
	return nil
}

func (m *OSFileSystem) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", sag.ErrFileSystem, path, err)
	}
	return info.Size(), nil
}
