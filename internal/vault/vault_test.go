package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"sag-go/internal/sag"
)

// exerciseVault runs the behaviour every sag.Vault implementation shares.
func exerciseVault(t *testing.T, v sag.Vault) {
	t.Helper()

	t.Run("content round trip", func(t *testing.T) {
		tests := []struct {
			name     string
			checksum string
			content  string
		}{
			{"small", "abc123", "hello world"},
			{"empty", "empty", ""},
			{"large", "large", strings.Repeat("x", 10000)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := v.PutContent(tt.checksum, strings.NewReader(tt.content), int64(len(tt.content))); err != nil {
					t.Fatalf("PutContent() error = %v", err)
				}
				var buf bytes.Buffer
				if err := v.GetContent(tt.checksum, &buf); err != nil {
					t.Fatalf("GetContent() error = %v", err)
				}
				if buf.String() != tt.content {
					t.Errorf("GetContent() = %q, want %q", buf.String(), tt.content)
				}
				ok, err := v.HasContent(tt.checksum)
				if err != nil || !ok {
					t.Errorf("HasContent() = %v, %v; want true, nil", ok, err)
				}
			})
		}
	})

	t.Run("content is idempotent", func(t *testing.T) {
		if err := v.PutContent("dup", strings.NewReader("first"), 5); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}
		if err := v.PutContent("dup", strings.NewReader("other"), 5); err != nil {
			t.Fatalf("second PutContent() error = %v", err)
		}
		var buf bytes.Buffer
		if err := v.GetContent("dup", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if buf.String() != "first" {
			t.Errorf("GetContent() = %q, want original content", buf.String())
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		if err := v.PutContent("short", strings.NewReader("abc"), 10); err == nil {
			t.Fatal("PutContent() expected size mismatch error")
		}
		if ok, _ := v.HasContent("short"); ok {
			t.Error("content stored despite size mismatch")
		}
	})

	t.Run("missing content", func(t *testing.T) {
		ok, err := v.HasContent("missing")
		if err != nil || ok {
			t.Errorf("HasContent() = %v, %v; want false, nil", ok, err)
		}
		var buf bytes.Buffer
		err = v.GetContent("missing", &buf)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetContent() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("metadata versions", func(t *testing.T) {
		version, err := v.GetMetadataVersion("host-1", "catalog")
		if err != nil || version != 0 {
			t.Fatalf("GetMetadataVersion() on empty = %d, %v; want 0, nil", version, err)
		}

		if err := v.PutMetadata("host-1", "catalog", strings.NewReader("v1"), 2, 1); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		if err := v.PutMetadata("host-1", "catalog", strings.NewReader("v2 data"), 7, 2); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}
		if err := v.PutMetadata("host-2", "catalog", strings.NewReader("other"), 5, 9); err != nil {
			t.Fatalf("PutMetadata() error = %v", err)
		}

		version, err = v.GetMetadataVersion("host-1", "catalog")
		if err != nil || version != 2 {
			t.Errorf("GetMetadataVersion() = %d, %v; want 2, nil", version, err)
		}
		var buf bytes.Buffer
		if err := v.GetMetadata("host-1", "catalog", &buf); err != nil {
			t.Fatalf("GetMetadata() error = %v", err)
		}
		if buf.String() != "v2 data" {
			t.Errorf("GetMetadata() = %q, want %q", buf.String(), "v2 data")
		}
	})

	t.Run("missing metadata", func(t *testing.T) {
		var buf bytes.Buffer
		err := v.GetMetadata("nobody", "catalog", &buf)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetMetadata() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	exerciseVault(t, NewMemoryVault("test-vault"))
}

func TestFileSystemVault(t *testing.T) {
	v, err := NewFileSystemVault("test-vault", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	exerciseVault(t, v)
}

func TestS3Vault(t *testing.T) {
	exerciseVault(t, NewS3VaultFromClient("test-vault", "bucket", "sag/", newFakeS3Client("bucket")))
}
