package sag

import (
	"sort"
	"strings"
)

// DefaultExtensions is used when neither the caller nor the settings store
// supplies an extension list.
var DefaultExtensions = []string{".txt", ".py", ".md", ".cpp", ".h", ".hpp", ".c"}

// ExtensionFilter is a case-insensitive set of allowed file extensions.
type ExtensionFilter struct {
	exts map[string]struct{}
}

// NewExtensionFilter builds a filter from extensions given with or without
// the leading dot.
func NewExtensionFilter(extensions []string) *ExtensionFilter {
	f := &ExtensionFilter{exts: make(map[string]struct{})}
	for _, ext := range extensions {
		f.Add(ext)
	}
	return f
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
// Blank input yields "".
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

func (f *ExtensionFilter) Add(ext string) {
	if ext = NormalizeExtension(ext); ext != "" && ext != "." {
		f.exts[ext] = struct{}{}
	}
}

func (f *ExtensionFilter) Remove(ext string) {
	delete(f.exts, NormalizeExtension(ext))
}

// Contains reports whether ext is in the set.
func (f *ExtensionFilter) Contains(ext string) bool {
	_, ok := f.exts[NormalizeExtension(ext)]
	return ok
}

// Allowed reports whether the extension of name is in the set.
// Names without an extension are never allowed.
func (f *ExtensionFilter) Allowed(name string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	_, ok := f.exts[ext]
	return ok
}

// Extensions returns the set in sorted order.
func (f *ExtensionFilter) Extensions() []string {
	out := make([]string, 0, len(f.exts))
	for ext := range f.exts {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (f *ExtensionFilter) Len() int { return len(f.exts) }

func (f *ExtensionFilter) String() string {
	return "ExtensionFilter(" + strings.Join(f.Extensions(), ", ") + ")"
}
