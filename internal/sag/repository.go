package sag

// SnapshotRepository persists snapshots as container files.
// An empty password means "no encryption" on save and "none supplied" on load.
type SnapshotRepository interface {
	// Save validates snapshot, serializes it, encrypts it when password is
	// non-empty and writes it to path. The snapshot is not modified.
	Save(snapshot *Snapshot, path string, password string) error

	// Load reads path, decrypting if the envelope is detected, and returns a
	// validated snapshot. See the Err* kinds for the distinguishable failures.
	Load(path string, password string) (*Snapshot, error)

	// Exists reports whether a container file exists at path.
	Exists(path string) bool

	// Inspect reports container facts that need no password.
	Inspect(path string) (*ContainerInfo, error)
}

// ContainerInfo describes a container file without decoding it.
type ContainerInfo struct {
	Path      string
	Size      int64
	Encrypted bool
}
