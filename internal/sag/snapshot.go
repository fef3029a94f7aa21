package sag

import (
	"fmt"
	"sort"
	"time"
)

// NoExtensionKey groups files without an extension in Statistics.
const NoExtensionKey = "(no extension)"

// Snapshot is the aggregate root: one point-in-time copy of a source tree.
// It is populated additively and validated before every save and after every load.
type Snapshot struct {
	RootPath    string
	Directories []*DirectoryEntry
	Files       []*FileEntry
	CreatedAt   time.Time
	Metadata    map[string]any
}

// Statistics summarizes a snapshot.
type Statistics struct {
	RootPath       string
	CreatedAt      time.Time
	DirectoryCount int
	FileCount      int
	TotalSize      int64
	Extensions     map[string]int
}

// NewSnapshot creates an empty snapshot of rootPath.
func NewSnapshot(rootPath string, createdAt time.Time) *Snapshot {
	return &Snapshot{
		RootPath:  rootPath,
		CreatedAt: createdAt,
		Metadata:  make(map[string]any),
	}
}

// AddDirectory records a directory. The root itself ("" or ".") is skipped.
func (s *Snapshot) AddDirectory(relativePath string) {
	relativePath = NormalizePath(relativePath)
	if relativePath == "" || relativePath == "." {
		return
	}
	s.Directories = append(s.Directories, &DirectoryEntry{
		RelativePath: relativePath,
		CreatedAt:    s.CreatedAt,
	})
}

// AddFile appends a file entry.
func (s *Snapshot) AddFile(entry *FileEntry) {
	s.Files = append(s.Files, entry)
}

func (s *Snapshot) FileCount() int      { return len(s.Files) }
func (s *Snapshot) DirectoryCount() int { return len(s.Directories) }

// TotalSize is the sum of all file sizes in bytes.
func (s *Snapshot) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size()
	}
	return total
}

// Validate checks the snapshot invariants: a root path, consistent checksums
// and unique file and directory paths.
func (s *Snapshot) Validate() error {
	if s.RootPath == "" {
		return fmt.Errorf("%w: snapshot must have a root path", ErrValidation)
	}

	for _, f := range s.Files {
		if !f.ValidateChecksum() {
			return fmt.Errorf("%w: invalid checksum for file %q", ErrChecksumMismatch, f.RelativePath)
		}
	}

	seenFiles := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		if _, ok := seenFiles[f.RelativePath]; ok {
			return fmt.Errorf("%w: duplicate file path %q", ErrValidation, f.RelativePath)
		}
		seenFiles[f.RelativePath] = struct{}{}
	}

	seenDirs := make(map[string]struct{}, len(s.Directories))
	for _, d := range s.Directories {
		if _, ok := seenDirs[d.RelativePath]; ok {
			return fmt.Errorf("%w: duplicate directory path %q", ErrValidation, d.RelativePath)
		}
		seenDirs[d.RelativePath] = struct{}{}
	}

	return nil
}

// Statistics derives counts and sizes from the current contents.
func (s *Snapshot) Statistics() Statistics {
	exts := make(map[string]int)
	for _, f := range s.Files {
		ext := f.Extension()
		if ext == "" {
			ext = NoExtensionKey
		}
		exts[ext]++
	}
	return Statistics{
		RootPath:       s.RootPath,
		CreatedAt:      s.CreatedAt,
		DirectoryCount: s.DirectoryCount(),
		FileCount:      s.FileCount(),
		TotalSize:      s.TotalSize(),
		Extensions:     exts,
	}
}

// FileByPath returns the entry stored under relativePath, or nil.
func (s *Snapshot) FileByPath(relativePath string) *FileEntry {
	relativePath = NormalizePath(relativePath)
	for _, f := range s.Files {
		if f.RelativePath == relativePath {
			return f
		}
	}
	return nil
}

// SortedExtensions returns the extension keys of st in lexical order.
func (st Statistics) SortedExtensions() []string {
	keys := make([]string, 0, len(st.Extensions))
	for k := range st.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot(root=%q, %d dirs, %d files)", s.RootPath, s.DirectoryCount(), s.FileCount())
}
