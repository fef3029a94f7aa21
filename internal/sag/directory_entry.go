package sag

import (
	"strings"
	"time"
)

// DirectoryEntry is a directory relative to the snapshot root.
// CreatedAt is informational only.
type DirectoryEntry struct {
	RelativePath string
	CreatedAt    time.Time
}

// Depth returns 0 for the root and the number of path segments otherwise.
func (d *DirectoryEntry) Depth() int {
	if d.RelativePath == "" || d.RelativePath == "." {
		return 0
	}
	return len(strings.Split(d.RelativePath, "/"))
}

func (d *DirectoryEntry) String() string {
	return "Dir(" + d.RelativePath + ")"
}
