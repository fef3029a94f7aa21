package encryption

import (
	"bytes"
	"errors"
	"testing"

	"sag-go/internal/sag"
)

func TestAESGCMEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		plaintext []byte
		password  string
	}{
		{name: "text", plaintext: []byte("hello world"), password: "secret"},
		{name: "empty plaintext", plaintext: []byte{}, password: "secret"},
		{name: "empty password", plaintext: []byte("data"), password: ""},
		{name: "unicode password", plaintext: []byte{0x00, 0xff}, password: "pässwörd🔑"},
		{name: "large", plaintext: bytes.Repeat([]byte("0123456789"), 10000), password: "pw"},
	}

	enc := NewAESGCMEncryptor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sealed, err := enc.Encrypt(tt.plaintext, tt.password)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(sealed) != MinEnvelopeSize+len(tt.plaintext) {
				t.Errorf("len(envelope) = %d, want %d", len(sealed), MinEnvelopeSize+len(tt.plaintext))
			}

			got, err := enc.Decrypt(sealed, tt.password)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Decrypt() = %d bytes, want %d bytes", len(got), len(tt.plaintext))
			}
		})
	}
}

func TestAESGCMEncryptor_EnvelopeStructure(t *testing.T) {
	t.Parallel()

	sealed, err := NewAESGCMEncryptor().Encrypt([]byte("abc"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if string(sealed[:6]) != "SAGENC" {
		t.Errorf("magic = %q, want SAGENC", sealed[:6])
	}
	if sealed[6] != 0x01 {
		t.Errorf("version = %d, want 1", sealed[6])
	}
	if MinEnvelopeSize != 67 {
		t.Errorf("MinEnvelopeSize = %d, want 67", MinEnvelopeSize)
	}
	if len(sealed) != 6+1+32+12+3+16 {
		t.Errorf("len = %d, want %d", len(sealed), 6+1+32+12+3+16)
	}
}

func TestAESGCMEncryptor_NotDeterministic(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor()
	a, err := enc.Encrypt([]byte("same"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := enc.Encrypt([]byte("same"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if bytes.Equal(a, b) {
		t.Error("two envelopes are identical")
	}
	if bytes.Equal(a[saltOffset:nonceOffset], b[saltOffset:nonceOffset]) {
		t.Error("salt reused")
	}
	if bytes.Equal(a[nonceOffset:bodyOffset], b[nonceOffset:bodyOffset]) {
		t.Error("nonce reused")
	}
}

func TestAESGCMEncryptor_WrongPassword(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor()
	sealed, err := enc.Encrypt([]byte("secret data"), "right")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	got, err := enc.Decrypt(sealed, "wrong")
	if !errors.Is(err, sag.ErrInvalidPassword) {
		t.Fatalf("Decrypt() error = %v, want ErrInvalidPassword", err)
	}
	if errors.Is(err, sag.ErrDecryption) {
		t.Error("ErrInvalidPassword should not match ErrDecryption")
	}
	if got != nil {
		t.Errorf("Decrypt() returned %d bytes on failure", len(got))
	}
}

func TestAESGCMEncryptor_TamperDetection(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor()
	sealed, err := enc.Encrypt([]byte("tamper me"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Every bit in the ciphertext and tag is authenticated.
	for i := bodyOffset; i < len(sealed); i++ {
		bit := i % 8
		tampered := bytes.Clone(sealed)
		tampered[i] ^= 1 << bit
		if _, err := enc.Decrypt(tampered, "pw"); !errors.Is(err, sag.ErrInvalidPassword) {
			t.Fatalf("byte %d bit %d: Decrypt() error = %v, want ErrInvalidPassword", i, bit, err)
		}
	}

	for _, i := range []int{saltOffset, nonceOffset} {
		tampered := bytes.Clone(sealed)
		tampered[i] ^= 0x01
		if _, err := enc.Decrypt(tampered, "pw"); !errors.Is(err, sag.ErrInvalidPassword) {
			t.Errorf("byte %d: Decrypt() error = %v, want ErrInvalidPassword", i, err)
		}
	}
}

func TestAESGCMEncryptor_DecryptMalformed(t *testing.T) {
	t.Parallel()

	valid, err := NewAESGCMEncryptor().Encrypt([]byte("x"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	badMagic := bytes.Clone(valid)
	copy(badMagic, "NOTENC")
	badVersion := bytes.Clone(valid)
	badVersion[6] = 0x02

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "one byte short", data: make([]byte, MinEnvelopeSize-1)},
		{name: "header only", data: []byte("SAGENC\x01")},
		{name: "wrong magic", data: badMagic},
		{name: "wrong version", data: badVersion},
		{name: "plain json", data: bytes.Repeat([]byte(`{"files":[]}`), 10)},
	}

	enc := NewAESGCMEncryptor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := enc.Decrypt(tt.data, "pw")
			if !errors.Is(err, sag.ErrDecryption) {
				t.Errorf("Decrypt() error = %v, want ErrDecryption", err)
			}
			if errors.Is(err, sag.ErrInvalidPassword) {
				t.Error("structural failure reported as ErrInvalidPassword")
			}
		})
	}
}

func TestAESGCMEncryptor_IsEncrypted(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor()
	sealed, err := enc.Encrypt([]byte("{}"), "pw")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "envelope", data: sealed, want: true},
		{name: "header only", data: []byte("SAGENC\x01"), want: true},
		{name: "wrong version", data: []byte("SAGENC\x02rest"), want: false},
		{name: "magic without version", data: []byte("SAGENC"), want: false},
		{name: "json", data: []byte(`{"root_path": "/x"}`), want: false},
		{name: "empty", data: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := enc.IsEncrypted(tt.data); got != tt.want {
				t.Errorf("IsEncrypted() = %v, want %v", got, tt.want)
			}
		})
	}
}
