package sag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileEntry is one captured file. Checksum is computed once, at construction;
// ValidateChecksum exposes later mutation of Content instead of hiding it.
type FileEntry struct {
	RelativePath string
	Content      []byte
	Checksum     string
}

// NewFileEntry wraps content read from relativePath and records its SHA-256.
func NewFileEntry(relativePath string, content []byte) *FileEntry {
	if content == nil {
		content = []byte{}
	}
	return &FileEntry{
		RelativePath: NormalizePath(relativePath),
		Content:      content,
		Checksum:     Checksum(content),
	}
}

// NewFileEntryFromRecord rebuilds an entry from stored data. When the record
// declares a checksum, even an empty one, it must match the checksum of
// content. A nil declaredChecksum means the record carried none.
func NewFileEntryFromRecord(relativePath string, declaredChecksum *string, content []byte) (*FileEntry, error) {
	entry := NewFileEntry(relativePath, content)
	if declaredChecksum != nil && *declaredChecksum != entry.Checksum {
		return nil, fmt.Errorf("%w: file %q: expected %q, got %s",
			ErrChecksumMismatch, entry.RelativePath, *declaredChecksum, entry.Checksum)
	}
	return entry, nil
}

// Size is the content length in bytes.
func (f *FileEntry) Size() int64 {
	return int64(len(f.Content))
}

// ValidateChecksum recomputes the content checksum and compares it with the
// one recorded at construction.
func (f *FileEntry) ValidateChecksum() bool {
	return Checksum(f.Content) == f.Checksum
}

// Extension returns the lower-cased file extension, or "".
func (f *FileEntry) Extension() string {
	return Extension(f.RelativePath)
}

func (f *FileEntry) String() string {
	return fmt.Sprintf("File(%s, %d bytes)", f.RelativePath, f.Size())
}

// Checksum returns the hex SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
