package encryption

import (
	"fmt"
	"io"

	"sag-go/internal/sag"
)

// NoopEncryptor stores archives unchanged. Containers saved with a password
// are still protected by their own envelope.
type NoopEncryptor struct{}

var _ sag.ArchiveEncryptor = NoopEncryptor{}

func (NoopEncryptor) Setup(passphrase string) error { return nil }

func (NoopEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (NoopEncryptor) Unlock(passphrase string) (sag.DecryptionContext, error) {
	return noopDecryptionContext{}, nil
}

func (NoopEncryptor) IsConfigured() bool { return true }

func (NoopEncryptor) Enabled() bool { return false }

type noopDecryptionContext struct{}

func (noopDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
