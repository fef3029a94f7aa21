package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"sag-go/internal/sag"
)

// Envelope layout: Magic | Version | salt | nonce | ciphertext+tag.
const (
	Magic      = "SAGENC"
	SaltSize   = 32
	NonceSize  = 12
	TagSize    = 16
	KeySize    = 32
	Iterations = 100000

	headerSize  = len(Magic) + 1
	saltOffset  = headerSize
	nonceOffset = saltOffset + SaltSize
	bodyOffset  = nonceOffset + NonceSize

	// MinEnvelopeSize is the length of an envelope around empty plaintext.
	MinEnvelopeSize = bodyOffset + TagSize
)

// Version is the only envelope format understood by Decrypt.
const Version byte = 0x01

// AESGCMEncryptor implements sag.Encryptor with AES-256-GCM and a key derived
// from the password by PBKDF2-HMAC-SHA256. It holds no state.
type AESGCMEncryptor struct{}

var _ sag.Encryptor = AESGCMEncryptor{}

// NewAESGCMEncryptor creates a new AESGCMEncryptor.
func NewAESGCMEncryptor() AESGCMEncryptor {
	return AESGCMEncryptor{}
}

func (AESGCMEncryptor) Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: generating salt: %v", sag.ErrEncryption, err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", sag.ErrEncryption, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sag.ErrEncryption, err)
	}

	out := make([]byte, 0, bodyOffset+len(plaintext)+TagSize)
	out = append(out, Magic...)
	out = append(out, Version)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (AESGCMEncryptor) Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < MinEnvelopeSize {
		return nil, fmt.Errorf("%w: data too short (%d bytes)", sag.ErrDecryption, len(data))
	}
	if !bytes.Equal(data[:len(Magic)], []byte(Magic)) {
		return nil, fmt.Errorf("%w: data is not encrypted", sag.ErrDecryption)
	}
	if v := data[len(Magic)]; v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", sag.ErrDecryption, v)
	}

	salt := data[saltOffset:nonceOffset]
	nonce := data[nonceOffset:bodyOffset]
	sealed := data[bodyOffset:]
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", sag.ErrDecryption)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sag.ErrDecryption, err)
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, sag.ErrInvalidPassword
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func (AESGCMEncryptor) IsEncrypted(data []byte) bool {
	return len(data) >= headerSize &&
		bytes.Equal(data[:len(Magic)], []byte(Magic)) &&
		data[len(Magic)] == Version
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
