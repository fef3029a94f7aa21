package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemVault_Layout(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("fs", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	if err := v.PutContent("deadbeef", strings.NewReader("data"), 4); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	if err := v.PutMetadata("host", "catalog", strings.NewReader("db"), 2, 42); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	for _, p := range []string{
		filepath.Join(root, "content", "deadbeef"),
		filepath.Join(root, "metadata", "host", "catalog"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	version, err := os.ReadFile(filepath.Join(root, "metadata", "host", "catalog.version"))
	if err != nil {
		t.Fatalf("reading version file: %v", err)
	}
	if string(version) != "42" {
		t.Errorf("version file = %q, want %q", version, "42")
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Join(root, "content"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestFileSystemVault_RejectsUnsafeKeys(t *testing.T) {
	v, err := NewFileSystemVault("fs", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if err := v.PutContent(key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("PutContent(%q) expected error", key)
		}
		if err := v.PutMetadata("host", key, strings.NewReader("x"), 1, 1); err == nil {
			t.Errorf("PutMetadata(name=%q) expected error", key)
		}
	}
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("fs", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	if err := os.RemoveAll(filepath.Join(root, "content")); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error after content dir removed")
	}
}

func TestFileSystemVault_CorruptVersion(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("fs", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := v.PutMetadata("host", "catalog", strings.NewReader("db"), 2, 1); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}
	versionPath := filepath.Join(root, "metadata", "host", "catalog.version")
	if err := os.WriteFile(versionPath, []byte("not-a-number"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := v.GetMetadataVersion("host", "catalog"); err == nil {
		t.Error("GetMetadataVersion() expected parse error")
	}
}
