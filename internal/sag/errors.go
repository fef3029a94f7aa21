package sag

import (
	"errors"
	"fmt"
)

// Error kinds surfaced at the core boundary. Callers match them with errors.Is;
// the wrapped message carries the details.
var (
	// ErrValidation reports a violated domain invariant.
	ErrValidation = errors.New("validation failed")

	// ErrChecksumMismatch reports content whose SHA-256 does not match the
	// recorded checksum.
	ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", ErrValidation)

	// ErrInvalidSnapshot reports a container that cannot be parsed into a snapshot.
	ErrInvalidSnapshot = fmt.Errorf("%w: invalid snapshot", ErrValidation)

	// ErrEncoding reports malformed encoded content.
	ErrEncoding = errors.New("encoding failed")

	// ErrEncryption reports an unexpected failure on the encrypt path.
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption reports a structurally unusable envelope.
	ErrDecryption = errors.New("decryption failed")

	// ErrPasswordRequired reports an encrypted container loaded without a password.
	ErrPasswordRequired = fmt.Errorf("%w: password required", ErrDecryption)

	// ErrInvalidPassword reports an authentication failure: wrong password or
	// tampered data. GCM cannot tell the two apart.
	ErrInvalidPassword = errors.New("authentication failed: wrong password or corrupted data")

	// ErrSnapshotNotFound reports a missing container file.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrRepository reports any other persistence failure.
	ErrRepository = errors.New("repository error")

	// ErrFileSystem wraps OS-level failures from the filesystem collaborator.
	ErrFileSystem = errors.New("filesystem error")

	// ErrOutputExists reports a pull whose destination is already taken.
	ErrOutputExists = errors.New("output file already exists")
)
