package sag

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts a relative path to the forward-slash form stored in
// snapshots. Backslashes are treated as separators so containers written on
// Windows load everywhere.
func NormalizePath(p string) string {
	p = filepath.ToSlash(p)
	return strings.ReplaceAll(p, `\`, "/")
}

// Extension returns the lower-cased extension of name including the leading
// dot, or "" when there is none.
func Extension(name string) string {
	return strings.ToLower(path.Ext(NormalizePath(name)))
}

// RelativePath returns target relative to root in normalized form.
func RelativePath(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return NormalizePath(rel), nil
}

// IsSafeRelativePath reports whether a stored relative path stays inside the
// directory it is joined to: not absolute, no drive letter and no ".." segment.
func IsSafeRelativePath(p string) bool {
	p = NormalizePath(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
