package testutil

import (
	"sag-go/internal/encryption"
	"sag-go/internal/sag"
)

// NewTestArchiveEncryptor returns a reversible archive encryptor that needs no keys.
func NewTestArchiveEncryptor() sag.ArchiveEncryptor {
	return encryption.NewTestEncryptor()
}

// NewEnvelopeEncryptor returns the production password envelope.
func NewEnvelopeEncryptor() sag.Encryptor {
	return encryption.NewAESGCMEncryptor()
}
