package testutil

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"sag-go/internal/sag"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content []byte
}

// MockFileSystem is an in-memory sag.FileSystem keyed by cleaned absolute
// paths. Failures can be injected per path.
type MockFileSystem struct {
	mu    sync.Mutex
	files map[string]*MockFile
	dirs  map[string]struct{}

	// ReadErrors, WriteErrors and DirErrors map a path to the error the
	// matching call should fail with.
	ReadErrors  map[string]error
	WriteErrors map[string]error
	DirErrors   map[string]error

	// ListError, when set, is returned by ListFiles.
	ListError error

	// UnreadableDirs maps a directory to the error ListFiles reports for it.
	// Files below it are left out of the listing.
	UnreadableDirs map[string]error
}

var _ sag.FileSystem = (*MockFileSystem)(nil)

// NewMockFileSystem creates an empty mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files:       make(map[string]*MockFile),
		dirs:        make(map[string]struct{}),
		ReadErrors:  make(map[string]error),
		WriteErrors: make(map[string]error),
		DirErrors:   make(map[string]error),

		UnreadableDirs: make(map[string]error),
	}
}

// AddFile adds a file and all of its parent directories.
func (m *MockFileSystem) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.files[path] = &MockFile{Content: content}
	m.addParents(path)
}

// AddDirectory adds a directory and its parents.
func (m *MockFileSystem) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.dirs[path] = struct{}{}
	m.addParents(path)
}

func (m *MockFileSystem) addParents(path string) {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		m.dirs[dir] = struct{}{}
		if dir == filepath.Dir(dir) {
			return
		}
	}
}

// File returns the content stored at path and whether it exists.
func (m *MockFileSystem) File(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, false
	}
	return f.Content, true
}

// Paths returns every file path in sorted order.
func (m *MockFileSystem) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MockFileSystem) DirectoryExists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dirs[filepath.Clean(path)]
	return ok
}

func (m *MockFileSystem) CreateDirectory(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.DirErrors[path]; err != nil {
		return fmt.Errorf("%w: creating %s: %w", sag.ErrFileSystem, path, err)
	}
	if _, ok := m.files[path]; ok {
		return fmt.Errorf("%w: %s is a file", sag.ErrFileSystem, path)
	}
	m.dirs[path] = struct{}{}
	m.addParents(path)
	return nil
}

func (m *MockFileSystem) ListFiles(root string, filter *sag.ExtensionFilter) ([]string, []sag.ItemError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, nil, fmt.Errorf("%w: %w", sag.ErrFileSystem, m.ListError)
	}
	root = filepath.Clean(root)
	if _, ok := m.dirs[root]; !ok {
		return nil, nil, fmt.Errorf("%w: directory does not exist: %s", sag.ErrFileSystem, root)
	}

	prefix := root + string(filepath.Separator)
	var blocked []string
	var unreadable []sag.ItemError
	for dir, err := range m.UnreadableDirs {
		dir = filepath.Clean(dir)
		if !strings.HasPrefix(dir, prefix) {
			continue
		}
		blocked = append(blocked, dir+string(filepath.Separator))
		unreadable = append(unreadable, sag.ItemError{
			Path: dir,
			Err:  fmt.Errorf("%w: reading %s: %w", sag.ErrFileSystem, dir, err),
		})
	}
	sort.Slice(unreadable, func(i, j int) bool { return unreadable[i].Path < unreadable[j].Path })

	var out []string
	for p := range m.files {
		if !strings.HasPrefix(p, prefix) || !filter.Allowed(p) {
			continue
		}
		hidden := false
		for _, b := range blocked {
			if strings.HasPrefix(p, b) {
				hidden = true
				break
			}
		}
		if !hidden {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, unreadable, nil
}

func (m *MockFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.ReadErrors[path]; err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", sag.ErrFileSystem, path, err)
	}
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: file not found: %s", sag.ErrFileSystem, path)
	}
	return append([]byte(nil), f.Content...), nil
}

func (m *MockFileSystem) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.WriteErrors[path]; err != nil {
		return fmt.Errorf("%w: writing %s: %w", sag.ErrFileSystem, path, err)
	}
	m.files[path] = &MockFile{Content: append([]byte(nil), data...)}
	m.addParents(path)
	return nil
}

func (m *MockFileSystem) FileSize(path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return 0, fmt.Errorf("%w: file not found: %s", sag.ErrFileSystem, path)
	}
	return int64(len(f.Content)), nil
}
