package sag

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sag-go/internal/model"
)

// ArchiveService stores container files in a vault and keeps the local
// catalog of what was stored.
type ArchiveService struct {
	database  Database
	vault     Vault
	encryptor ArchiveEncryptor
	envelope  Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewArchiveService creates a new ArchiveService. envelope is used only to
// detect password-protected containers.
func NewArchiveService(database Database, vault Vault, encryptor ArchiveEncryptor, envelope Encryptor, logger Logger, clock Clock, idgen IDGenerator) *ArchiveService {
	return &ArchiveService{
		database:  database,
		vault:     vault,
		encryptor: encryptor,
		envelope:  envelope,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Push copies the container at containerPath into the vault under name.
// When name is empty the file's base name is used. Stored bytes are
// encrypted with the archive key if the encryptor is enabled, and stored
// under their own SHA-256 so identical uploads are deduplicated.
func (s *ArchiveService) Push(containerPath string, name string) (*model.Archive, error) {
	data, err := os.ReadFile(containerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, containerPath)
		}
		return nil, fmt.Errorf("reading container: %w", err)
	}

	if name == "" {
		name = filepath.Base(containerPath)
	}
	existing, err := s.database.FindArchiveByName(name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing archive: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("archive %q already exists", name)
	}

	stored := data
	if s.encryptor.Enabled() {
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return nil, fmt.Errorf("encrypting archive: %w", err)
		}
		stored = buf.Bytes()
	}
	storedChecksum := Checksum(stored)

	// Upload first; an orphaned blob in the vault is harmless if the
	// catalog insert fails afterwards.
	present, err := s.vault.HasContent(storedChecksum)
	if err != nil {
		return nil, fmt.Errorf("checking vault: %w", err)
	}
	if present {
		s.logger.Debug("archive content deduplicated", "checksum", storedChecksum)
	} else {
		if err := s.vault.PutContent(storedChecksum, bytes.NewReader(stored), int64(len(stored))); err != nil {
			return nil, fmt.Errorf("uploading to vault: %w", err)
		}
	}

	archive := &model.Archive{
		ID:                s.idgen.New(),
		Name:              name,
		Checksum:          Checksum(data),
		StoredChecksum:    storedChecksum,
		Size:              int64(len(data)),
		PasswordProtected: s.envelope.IsEncrypted(data),
		VaultEncrypted:    s.encryptor.Enabled(),
		ArchivedAt:        s.clock.Now(),
	}
	if err := s.database.CreateArchive(archive); err != nil {
		return nil, fmt.Errorf("recording archive: %w", err)
	}

	s.logger.Info("archive pushed", "name", name, "checksum", archive.Checksum, "size", archive.Size)
	return archive, nil
}

// Pull writes the archive called name to dest. decryptCtx is required when
// the archive was stored encrypted. An existing dest is never overwritten.
func (s *ArchiveService) Pull(name string, dest string, decryptCtx DecryptionContext) (*model.Archive, error) {
	archive, err := s.database.FindArchiveByName(name)
	if err != nil {
		return nil, fmt.Errorf("finding archive: %w", err)
	}
	if archive == nil {
		return nil, fmt.Errorf("archive not found: %s", name)
	}

	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, dest)
	}

	var stored bytes.Buffer
	if err := s.vault.GetContent(archive.StoredChecksum, &stored); err != nil {
		return nil, fmt.Errorf("retrieving archive from vault: %w", err)
	}
	if got := Checksum(stored.Bytes()); got != archive.StoredChecksum {
		return nil, fmt.Errorf("%w: stored archive %q: expected %s, got %s", ErrChecksumMismatch, name, archive.StoredChecksum, got)
	}

	data := stored.Bytes()
	if archive.VaultEncrypted {
		if decryptCtx == nil {
			return nil, fmt.Errorf("archive is encrypted but no passphrase was provided")
		}
		var plain bytes.Buffer
		if err := decryptCtx.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return nil, fmt.Errorf("decrypting archive: %w", err)
		}
		data = plain.Bytes()
	}
	if got := Checksum(data); got != archive.Checksum {
		return nil, fmt.Errorf("%w: archive %q: expected %s, got %s", ErrChecksumMismatch, name, archive.Checksum, got)
	}

	if err := writeNewFile(dest, data); err != nil {
		return nil, err
	}

	s.logger.Info("archive pulled", "name", name, "path", dest)
	return archive, nil
}

// List returns every archive in the catalog, newest first.
func (s *ArchiveService) List() ([]*model.Archive, error) {
	archives, err := s.database.ListArchives()
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	return archives, nil
}

// History returns the most recent operations, newest first.
func (s *ArchiveService) History(limit int) ([]*model.Operation, error) {
	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// writeNewFile writes data to a temp file next to dest and links it into
// place. The link fails if dest appeared in the meantime, so an existing
// file is never replaced.
func writeNewFile(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sag-pull-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	err = os.Link(tmpPath, dest)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrOutputExists, dest)
	}
	if err != nil {
		// Filesystems without hard links still get exclusive creation.
		return writeExclusive(dest, data)
	}
	return nil
}

func writeExclusive(dest string, data []byte) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrOutputExists, dest)
	}
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	return nil
}
