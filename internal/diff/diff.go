// Package diff compares two snapshots and renders unified patches for the
// files that changed between them.
package diff

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	difflib "github.com/pmezard/go-difflib/difflib"

	"sag-go/internal/sag"
)

// DefaultContext is the number of context lines used when Patch is given a
// non-positive value.
const DefaultContext = 3

// Report lists relative paths by how they changed from the old snapshot to
// the new one. Every slice is sorted.
type Report struct {
	Added     []string
	Removed   []string
	Modified  []string
	Unchanged []string

	DirsAdded   []string
	DirsRemoved []string
}

// Empty reports whether the two snapshots hold the same files and directories.
func (r *Report) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0 &&
		len(r.DirsAdded) == 0 && len(r.DirsRemoved) == 0
}

func (r *Report) String() string {
	return fmt.Sprintf("%d added, %d removed, %d modified, %d unchanged",
		len(r.Added), len(r.Removed), len(r.Modified), len(r.Unchanged))
}

// Compare matches files by relative path; content equality is decided by checksum.
func Compare(oldSnap, newSnap *sag.Snapshot) *Report {
	r := &Report{}

	oldFiles := make(map[string]string, len(oldSnap.Files))
	for _, f := range oldSnap.Files {
		oldFiles[f.RelativePath] = f.Checksum
	}
	newFiles := make(map[string]struct{}, len(newSnap.Files))
	for _, f := range newSnap.Files {
		newFiles[f.RelativePath] = struct{}{}
		checksum, ok := oldFiles[f.RelativePath]
		switch {
		case !ok:
			r.Added = append(r.Added, f.RelativePath)
		case checksum != f.Checksum:
			r.Modified = append(r.Modified, f.RelativePath)
		default:
			r.Unchanged = append(r.Unchanged, f.RelativePath)
		}
	}
	for _, f := range oldSnap.Files {
		if _, ok := newFiles[f.RelativePath]; !ok {
			r.Removed = append(r.Removed, f.RelativePath)
		}
	}

	r.DirsAdded, r.DirsRemoved = compareDirs(oldSnap.Directories, newSnap.Directories)

	for _, s := range [][]string{r.Added, r.Removed, r.Modified, r.Unchanged, r.DirsAdded, r.DirsRemoved} {
		sort.Strings(s)
	}
	return r
}

func compareDirs(oldDirs, newDirs []*sag.DirectoryEntry) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(oldDirs))
	for _, d := range oldDirs {
		oldSet[d.RelativePath] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newDirs))
	for _, d := range newDirs {
		newSet[d.RelativePath] = struct{}{}
		if _, ok := oldSet[d.RelativePath]; !ok {
			added = append(added, d.RelativePath)
		}
	}
	for _, d := range oldDirs {
		if _, ok := newSet[d.RelativePath]; !ok {
			removed = append(removed, d.RelativePath)
		}
	}
	return added, removed
}

// Patch renders a unified diff from oldEntry to newEntry. Either side may be
// nil for an added or removed file. Identical content yields "".
func Patch(oldEntry, newEntry *sag.FileEntry, context int) string {
	if context <= 0 {
		context = DefaultContext
	}

	fromFile, toFile := "/dev/null", "/dev/null"
	var a, b []byte
	if oldEntry != nil {
		fromFile = "a/" + oldEntry.RelativePath
		a = oldEntry.Content
	}
	if newEntry != nil {
		toFile = "b/" + newEntry.RelativePath
		b = newEntry.Content
	}
	if oldEntry != nil && newEntry != nil && oldEntry.Checksum == newEntry.Checksum {
		return ""
	}

	if isBinary(a) || isBinary(b) {
		return fmt.Sprintf("Binary files %s and %s differ\n", fromFile, toFile)
	}

	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(a),
		B:        splitLines(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  context,
	})
	if err != nil {
		return fmt.Sprintf("--- %s\n+++ %s\n# diff unavailable: %v\n", fromFile, toFile, err)
	}
	return s
}

// isBinary treats NUL bytes and invalid UTF-8 as binary content.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}

// splitLines keeps line terminators. A missing final newline is added so the
// last line does not run into the next hunk line.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	lines := strings.SplitAfter(string(data), "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
