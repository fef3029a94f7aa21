package sag

import "io"

// Encryptor wraps container bytes in a self-describing password envelope.
// Every call derives its key from the supplied password and the salt carried
// in the envelope; no key material is cached.
type Encryptor interface {
	// Encrypt returns a fresh envelope for plaintext. Two calls with the same
	// arguments return different bytes.
	Encrypt(plaintext []byte, password string) ([]byte, error)

	// Decrypt opens an envelope. Structural problems return ErrDecryption;
	// authentication failure returns ErrInvalidPassword.
	Decrypt(data []byte, password string) ([]byte, error)

	// IsEncrypted sniffs the magic header and version without decrypting.
	IsEncrypted(data []byte) bool
}

// ArchiveEncryptor protects containers at rest in a vault. Encryption uses a
// public key only; decryption requires a passphrase to unlock the private key,
// producing a DecryptionContext for the session.
type ArchiveEncryptor interface {
	// Setup performs one-time key generation and protects the private key
	// with passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a DecryptionContext.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool

	// Enabled reports whether archives are transformed at all. A disabled
	// encryptor stores containers as they are.
	Enabled() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a pull. The unlocked key is never written to disk.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
