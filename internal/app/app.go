package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"sag-go/internal/config"
	"sag-go/internal/database"
	"sag-go/internal/encoding"
	"sag-go/internal/encryption"
	"sag-go/internal/fs"
	"sag-go/internal/model"
	"sag-go/internal/repository"
	"sag-go/internal/sag"
	"sag-go/internal/vault"
)

// CatalogMetadataName is the vault metadata item holding the catalog snapshot.
const CatalogMetadataName = "catalog"

var (
	// ErrNoCatalog is returned by operations that need the catalog database
	// when none is configured.
	ErrNoCatalog = errors.New("no catalog configured: run 'sag config init'")

	// ErrNoVault is returned by archive operations when no vault is configured.
	ErrNoVault = errors.New("no vault configured")
)

// SagApp is the application layer between the CLI and the core services.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the catalog lifecycle on Close.
//
// The catalog and the vault are optional: without them capture, recreate,
// info, verify and diff still work.
type SagApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	vault     sag.Vault
	encryptor sag.ArchiveEncryptor
	service   *sag.SagService
	archives  *sag.ArchiveService
	logger    sag.Logger
	op        *Operation
	logCloser io.Closer
}

// NewSagApp creates a fully wired SagApp from the given config.
// operation names the CLI command being run (e.g. "capture", "archive push").
// The caller must call Close when done.
func NewSagApp(cfg *config.Config, operation string, parameters string) (*SagApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logCloser, err := newLogger(cfg.Log, cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &SagApp{
		cfg:       cfg,
		logger:    logger,
		op:        NewOperation(operation, parameters),
		logCloser: logCloser,
	}

	if err := a.openCatalog(); err != nil {
		a.closeResources()
		return nil, err
	}

	envelope := encryption.NewAESGCMEncryptor()
	repo := repository.NewJSONRepository(encoding.NewBase64Encoder(), envelope)
	settings := sag.Settings{
		Extensions:  cfg.Scan.Extensions,
		MaxFileSize: cfg.Scan.MaxFileSize,
	}
	if len(settings.Extensions) == 0 {
		settings.Extensions = sag.DefaultSettings().Extensions
	}
	a.service = sag.NewSagService(fs.NewOSFileSystem(cfg.Scan.Ignore), repo, settings, logger, sag.RealClock{}, sag.UUIDGenerator{})

	if a.db != nil && a.vault != nil {
		a.archives = sag.NewArchiveService(a.db, a.vault, a.encryptor, envelope, logger, sag.RealClock{}, sag.UUIDGenerator{})
	}

	return a, nil
}

// openCatalog opens the catalog and vault when configured and refuses to
// continue if the vault holds a newer catalog than the local one.
func (a *SagApp) openCatalog() error {
	cfg := a.cfg

	if len(cfg.Vaults) > 0 {
		v, err := vault.NewVaultFromConfig(context.Background(), cfg.Vaults[0])
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v

		enc, err := encryption.NewArchiveEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		a.encryptor = enc
	}

	if cfg.Database.Type == "" {
		return nil
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	a.db = db

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date: %w", err)
	}

	if a.vault == nil {
		return nil
	}

	remoteVersion, err := a.vault.GetMetadataVersion(cfg.HostID, CatalogMetadataName)
	if err != nil {
		return fmt.Errorf("checking remote catalog version: %w", err)
	}
	localMax, err := db.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local catalog version: %w", err)
	}
	if remoteVersion > localMax {
		return fmt.Errorf("local catalog is behind vault (local=%d, remote=%d): restore it from the vault or re-initialize", localMax, remoteVersion)
	}
	return nil
}

// InitCatalog creates or upgrades the catalog schema described by cfg.
func InitCatalog(cfg *config.Config) error {
	if cfg.Database.Type == "" {
		return ErrNoCatalog
	}
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// persistOperation records the operation in the catalog, giving it an ID.
// Only commands that change the catalog or the vault call it. Without a
// catalog it does nothing.
func (a *SagApp) persistOperation() error {
	if a.db == nil || a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(a.op.Name, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// Fail marks the current operation as failed.
func (a *SagApp) Fail() {
	a.op.Fail()
}

// Settings returns the remembered-values store, or nil without a catalog.
func (a *SagApp) Settings() sag.SettingsStore {
	if a.db == nil {
		return nil
	}
	return a.db
}

// remember stores a path setting, logging instead of failing: a lost
// preference must not fail the command that produced it.
func (a *SagApp) remember(key, value string) {
	if a.db == nil {
		return
	}
	abs, err := filepath.Abs(value)
	if err == nil {
		value = abs
	}
	if err := a.db.SetString(key, value); err != nil {
		a.logger.Warn("remembering setting failed", "key", key, "error", err)
	}
}

// Remembered returns a remembered path setting, or "" when unknown.
func (a *SagApp) Remembered(key string) string {
	if a.db == nil {
		return ""
	}
	v, err := a.db.GetString(key, "")
	if err != nil {
		a.logger.Warn("reading setting failed", "key", key, "error", err)
		return ""
	}
	return v
}

// CaptureRequest describes one capture from the CLI.
type CaptureRequest struct {
	Source     string
	Output     string
	Extensions []string // empty means the remembered or configured list
	Password   string
	Observer   sag.Observer
}

// Capture scans req.Source and saves the snapshot to req.Output.
func (a *SagApp) Capture(req CaptureRequest) (*sag.ScanResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	exts := req.Extensions
	if len(exts) == 0 {
		var err error
		exts, err = sag.RememberedExtensions(a.Settings(), a.service.Settings().Extensions)
		if err != nil {
			return nil, fmt.Errorf("reading remembered extensions: %w", err)
		}
	}

	result, err := a.service.Scan(sag.ScanRequest{RootPath: req.Source, Extensions: exts, Observer: req.Observer})
	if err != nil {
		return nil, err
	}
	if err := a.service.Save(result.Snapshot, req.Output, req.Password); err != nil {
		return nil, err
	}

	a.remember(sag.SettingCaptureSource, req.Source)
	a.remember(sag.SettingCaptureOutput, req.Output)
	if len(req.Extensions) > 0 && a.db != nil {
		if err := a.db.SetList(sag.SettingExtensions, sag.NewExtensionFilter(req.Extensions).Extensions()); err != nil {
			a.logger.Warn("remembering extensions failed", "error", err)
		}
	}
	return result, nil
}

// LoadSnapshot reads the container at rawPath.
func (a *SagApp) LoadSnapshot(rawPath string, password string) (*sag.Snapshot, error) {
	return a.service.Load(rawPath, password)
}

// Recreate writes snapshot, loaded from inputPath, under output.
func (a *SagApp) Recreate(snapshot *sag.Snapshot, inputPath string, output string, obs sag.Observer) (*sag.RecreateResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	result, err := a.service.Recreate(sag.RecreateRequest{Snapshot: snapshot, OutputPath: output, Observer: obs})
	if err != nil {
		return nil, err
	}
	a.remember(sag.SettingRecreateInput, inputPath)
	a.remember(sag.SettingRecreateOutput, output)
	return result, nil
}

// Inspect reports container facts that need no password.
func (a *SagApp) Inspect(rawPath string) (*sag.ContainerInfo, error) {
	return a.service.Inspect(rawPath)
}

// Verify fully loads and validates the container at rawPath.
func (a *SagApp) Verify(rawPath string, password string) (*sag.Statistics, error) {
	return a.service.Verify(rawPath, password)
}

// Extensions returns the extension list used when capture is given none.
func (a *SagApp) Extensions() ([]string, error) {
	return sag.RememberedExtensions(a.Settings(), a.service.Settings().Extensions)
}

// AddExtensions adds exts to the remembered list and returns the new list.
func (a *SagApp) AddExtensions(exts ...string) ([]string, error) {
	return a.updateExtensions(func(f *sag.ExtensionFilter) {
		for _, ext := range exts {
			f.Add(ext)
		}
	})
}

// RemoveExtensions removes exts from the remembered list and returns the new list.
func (a *SagApp) RemoveExtensions(exts ...string) ([]string, error) {
	return a.updateExtensions(func(f *sag.ExtensionFilter) {
		for _, ext := range exts {
			f.Remove(ext)
		}
	})
}

// ResetExtensions forgets the remembered list.
func (a *SagApp) ResetExtensions() ([]string, error) {
	if a.db == nil {
		return nil, ErrNoCatalog
	}
	if err := a.db.Delete(sag.SettingExtensions); err != nil {
		return nil, fmt.Errorf("resetting extensions: %w", err)
	}
	return a.Extensions()
}

func (a *SagApp) updateExtensions(change func(*sag.ExtensionFilter)) ([]string, error) {
	if a.db == nil {
		return nil, ErrNoCatalog
	}
	current, err := a.Extensions()
	if err != nil {
		return nil, err
	}
	filter := sag.NewExtensionFilter(current)
	change(filter)
	if filter.Len() == 0 {
		return nil, errors.New("extension list cannot be empty")
	}
	exts := filter.Extensions()
	if err := a.db.SetList(sag.SettingExtensions, exts); err != nil {
		return nil, fmt.Errorf("saving extensions: %w", err)
	}
	return exts, nil
}

func (a *SagApp) archiveService() (*sag.ArchiveService, error) {
	if a.db == nil {
		return nil, ErrNoCatalog
	}
	if a.vault == nil {
		return nil, ErrNoVault
	}
	return a.archives, nil
}

// PushArchive stores the container at rawPath in the vault under name.
func (a *SagApp) PushArchive(rawPath string, name string) (*model.Archive, error) {
	svc, err := a.archiveService()
	if err != nil {
		return nil, err
	}
	if a.encryptor.Enabled() && !a.encryptor.IsConfigured() {
		return nil, errors.New("archive encryption keys not found: run 'sag config encryption init'")
	}
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return svc.Push(rawPath, name)
}

// ArchiveNeedsPassphrase reports whether pulling requires unlocking the archive key.
func (a *SagApp) ArchiveNeedsPassphrase(name string) (bool, error) {
	if _, err := a.archiveService(); err != nil {
		return false, err
	}
	archive, err := a.db.FindArchiveByName(name)
	if err != nil {
		return false, fmt.Errorf("finding archive: %w", err)
	}
	if archive == nil {
		return false, fmt.Errorf("archive not found: %s", name)
	}
	return archive.VaultEncrypted, nil
}

// PullArchive writes the archive called name to dest. passphrase unlocks the
// archive key and is ignored for archives stored unencrypted.
func (a *SagApp) PullArchive(name string, dest string, passphrase string) (*model.Archive, error) {
	svc, err := a.archiveService()
	if err != nil {
		return nil, err
	}
	needs, err := a.ArchiveNeedsPassphrase(name)
	if err != nil {
		return nil, err
	}

	var decryptCtx sag.DecryptionContext
	if needs {
		decryptCtx, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking archive key: %w", err)
		}
	}

	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return svc.Pull(name, dest, decryptCtx)
}

// ListArchives returns every archive in the catalog, newest first.
func (a *SagApp) ListArchives() ([]*model.Archive, error) {
	if a.db == nil {
		return nil, ErrNoCatalog
	}
	return a.db.ListArchives()
}

// History returns the most recent operations.
func (a *SagApp) History(limit int) ([]*model.Operation, error) {
	if a.db == nil {
		return nil, ErrNoCatalog
	}
	return a.db.ListOperations(limit)
}

// SetupEncryption generates the archive key pair protected by passphrase.
func (a *SagApp) SetupEncryption(passphrase string) error {
	if a.encryptor == nil {
		return ErrNoVault
	}
	return a.encryptor.Setup(passphrase)
}

// ValidateVault checks that the configured vault is reachable.
func (a *SagApp) ValidateVault() error {
	if a.vault == nil {
		return ErrNoVault
	}
	return a.vault.ValidateSetup()
}

// Close finalizes the operation and closes all resources.
// For persisted operations it finishes the operation record and, when a
// vault is configured, uploads a snapshot of the catalog versioned by the
// operation ID.
func (a *SagApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.db != nil && a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing operation: %w", err))
		}
		if a.vault != nil {
			keep(a.uploadCatalog())
		}
	}

	keep(a.closeResources())
	return firstErr
}

func (a *SagApp) closeResources() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
		a.db = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
	return firstErr
}

// uploadCatalog snapshots the catalog to a temp file and uploads it to the
// vault with the operation ID as version.
func (a *SagApp) uploadCatalog() error {
	tmpDir, err := os.MkdirTemp("", "sag-catalog-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for catalog backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// VACUUM INTO refuses to overwrite, so target a fresh name.
	tmpPath := filepath.Join(tmpDir, "catalog.db")
	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening catalog backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat catalog backup: %w", err)
	}

	if err := a.vault.PutMetadata(a.cfg.HostID, CatalogMetadataName, f, info.Size(), a.op.ID); err != nil {
		return fmt.Errorf("uploading catalog to vault: %w", err)
	}
	a.logger.Info("catalog uploaded", "version", a.op.ID, "size", info.Size())
	return nil
}
