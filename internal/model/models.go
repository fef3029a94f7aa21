package model

import (
	"database/sql"
	"time"
)

// Archive is a container file stored in the vault.
type Archive struct {
	ID                string    // UUID
	Name              string    // Unique, user-chosen
	Checksum          string    // SHA-256 of the container bytes as pushed
	StoredChecksum    string    // SHA-256 of the bytes in the vault (content key)
	Size              int64     // Container size in bytes
	PasswordProtected bool      // Container carries the password envelope
	VaultEncrypted    bool      // Stored bytes are encrypted with the archive key
	ArchivedAt        time.Time
}

// Operation records one CLI operation that changed the catalog or the vault.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string // "running", "success" or "error"
}
