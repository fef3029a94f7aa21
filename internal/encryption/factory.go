package encryption

import (
	"fmt"

	"sag-go/internal/config"
	"sag-go/internal/sag"
)

// NewArchiveEncryptorFromConfig creates an ArchiveEncryptor based on the configuration type.
func NewArchiveEncryptorFromConfig(cfg config.EncryptionConfig) (sag.ArchiveEncryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return NoopEncryptor{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
