package sag

// FileSystem is the collaborator used by scan and recreate.
// All failures wrap ErrFileSystem.
type FileSystem interface {
	DirectoryExists(path string) bool

	// CreateDirectory creates path and any missing parents. It is idempotent.
	CreateDirectory(path string) error

	// ListFiles returns absolute paths of regular files under root, recursively,
	// whose extension is allowed by filter. Subdirectories that cannot be read
	// are returned as unreadable with absolute paths; only a failure on root
	// itself is an error.
	ListFiles(root string, filter *ExtensionFilter) (paths []string, unreadable []ItemError, err error)

	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to path, creating parent directories.
	WriteFile(path string, data []byte) error

	FileSize(path string) (int64, error)
}
