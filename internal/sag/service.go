package sag

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
)

// SagService is the orchestration layer: it scans directories into snapshots,
// persists them through the repository and recreates trees from them.
// It holds no locks; callers serialize work on the same snapshot or container.
type SagService struct {
	fs         FileSystem
	repository SnapshotRepository
	settings   Settings
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewSagService creates a new SagService with the provided dependencies.
func NewSagService(fs FileSystem, repository SnapshotRepository, settings Settings, logger Logger, clock Clock, idgen IDGenerator) *SagService {
	return &SagService{
		fs:         fs,
		repository: repository,
		settings:   settings,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// Settings returns the configuration the service was built with.
func (s *SagService) Settings() Settings {
	return s.settings
}

// ItemError records a per-item failure inside a bulk operation.
type ItemError struct {
	Path string
	Err  error
}

func (e ItemError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

// ScanRequest describes one capture.
type ScanRequest struct {
	RootPath   string
	Extensions []string
	Observer   Observer
}

// ScanResult is the snapshot plus the files that could not be captured.
type ScanResult struct {
	Snapshot *Snapshot
	Skipped  []ItemError
}

// Scan walks req.RootPath and captures every file whose extension is allowed.
// Ancestors of captured files are recorded as directories. Files that cannot
// be read, or exceed the configured size limit, are skipped and reported, as
// are subdirectories that cannot be listed. Only a missing or unreadable root
// is fatal.
func (s *SagService) Scan(req ScanRequest) (*ScanResult, error) {
	if req.RootPath == "" {
		return nil, errors.New("scan request: root path cannot be empty")
	}
	filter := NewExtensionFilter(req.Extensions)
	if filter.Len() == 0 {
		return nil, errors.New("scan request: extensions list cannot be empty")
	}
	obs := observerOrNop(req.Observer)

	root, err := filepath.Abs(req.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if !s.fs.DirectoryExists(root) {
		return nil, fmt.Errorf("%w: directory does not exist: %s", ErrFileSystem, root)
	}

	s.logger.Info("scan started", "root", root, "extensions", filter.String())
	obs.OnLog("Starting scan in: " + root)

	paths, unreadable, err := s.fs.ListFiles(root, filter)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	sort.Strings(paths)
	obs.OnLog(fmt.Sprintf("Found %d files matching extensions.", len(paths)))

	result := &ScanResult{}
	for _, item := range unreadable {
		rel, relErr := RelativePath(root, item.Path)
		if relErr != nil {
			rel = item.Path
		}
		result.Skipped = append(result.Skipped, ItemError{Path: rel, Err: item.Err})
		s.logger.Warn("directory skipped", "path", item.Path, "error", item.Err)
		obs.OnLog(fmt.Sprintf("  [Error reading directory %s] -> %v", rel, item.Err))
	}

	snapshot := NewSnapshot(root, s.clock.Now())
	relPaths := make([]string, len(paths))
	dirs := make(map[string]struct{})
	for i, p := range paths {
		rel, err := RelativePath(root, p)
		if err != nil {
			return nil, fmt.Errorf("calculating relative path: %w", err)
		}
		relPaths[i] = rel
		for dir := path.Dir(rel); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	sortedDirs := make([]string, 0, len(dirs))
	for dir := range dirs {
		sortedDirs = append(sortedDirs, dir)
	}
	sort.Strings(sortedDirs)
	for _, dir := range sortedDirs {
		snapshot.AddDirectory(dir)
	}

	result.Snapshot = snapshot
	total := len(paths)
	obs.OnProgress(0, total)

	for i, p := range paths {
		rel := relPaths[i]
		content, err := s.readForScan(p)
		if err != nil {
			result.Skipped = append(result.Skipped, ItemError{Path: rel, Err: err})
			s.logger.Warn("file skipped", "path", p, "error", err)
			obs.OnLog(fmt.Sprintf("  [Error reading %s] -> %v", rel, err))
		} else {
			snapshot.AddFile(NewFileEntry(rel, content))
			s.logger.Debug("file captured", "path", rel, "size", len(content))
			obs.OnLog(fmt.Sprintf("  [Encode %d/%d] -> %s", i+1, total, rel))
		}
		obs.OnProgress(i+1, total)
	}

	snapshot.Metadata["snapshot_id"] = s.idgen.New()
	snapshot.Metadata["extensions"] = filter.Extensions()
	snapshot.Metadata["skipped_files"] = len(result.Skipped)

	s.logger.Info("scan complete", "root", root,
		"directories", snapshot.DirectoryCount(), "files", snapshot.FileCount(), "skipped", len(result.Skipped))
	obs.OnLog(fmt.Sprintf("Scan complete. Found %d subdirs and encoded %d files.",
		snapshot.DirectoryCount(), snapshot.FileCount()))

	return result, nil
}

// readForScan reads one file, enforcing the size limit first.
func (s *SagService) readForScan(p string) ([]byte, error) {
	if s.settings.MaxFileSize > 0 {
		size, err := s.fs.FileSize(p)
		if err != nil {
			return nil, err
		}
		if size > s.settings.MaxFileSize {
			return nil, fmt.Errorf("file is %d bytes, limit is %d", size, s.settings.MaxFileSize)
		}
	}
	return s.fs.ReadFile(p)
}

// RecreateRequest describes one reconstruction.
type RecreateRequest struct {
	Snapshot   *Snapshot
	OutputPath string
	Observer   Observer
}

// RecreateResult summarizes a reconstruction.
type RecreateResult struct {
	DirectoriesCreated int
	FilesWritten       int
	Failed             []ItemError
}

// Recreate writes every directory and file of req.Snapshot under
// req.OutputPath. Failing to create the output root is fatal; any other
// failure is recorded per item and the remaining items are still written.
func (s *SagService) Recreate(req RecreateRequest) (*RecreateResult, error) {
	if req.OutputPath == "" {
		return nil, errors.New("recreate request: output path cannot be empty")
	}
	if req.Snapshot == nil {
		return nil, errors.New("recreate request: snapshot cannot be nil")
	}
	obs := observerOrNop(req.Observer)
	snapshot := req.Snapshot

	output, err := filepath.Abs(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}

	s.logger.Info("recreate started", "output", output, "files", snapshot.FileCount())
	obs.OnLog("Starting recreation in: " + output)

	if err := s.fs.CreateDirectory(output); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	result := &RecreateResult{}
	fail := func(rel string, err error) {
		result.Failed = append(result.Failed, ItemError{Path: rel, Err: err})
		s.logger.Warn("recreate item failed", "path", rel, "error", err)
		obs.OnLog(fmt.Sprintf("  [Error %s] -> %v", rel, err))
	}

	for _, dir := range snapshot.Directories {
		target, err := joinSafe(output, dir.RelativePath)
		if err != nil {
			fail(dir.RelativePath, err)
			continue
		}
		if err := s.fs.CreateDirectory(target); err != nil {
			fail(dir.RelativePath, err)
			continue
		}
		result.DirectoriesCreated++
	}

	total := snapshot.FileCount()
	obs.OnProgress(0, total)
	for i, f := range snapshot.Files {
		target, err := joinSafe(output, f.RelativePath)
		if err == nil {
			err = s.fs.WriteFile(target, f.Content)
		}
		if err != nil {
			fail(f.RelativePath, err)
		} else {
			result.FilesWritten++
			obs.OnLog(fmt.Sprintf("  [Decode %d/%d] -> %s", i+1, total, f.RelativePath))
		}
		obs.OnProgress(i+1, total)
	}

	s.logger.Info("recreate complete", "output", output,
		"directories", result.DirectoriesCreated, "files", result.FilesWritten, "failed", len(result.Failed))
	obs.OnLog(fmt.Sprintf("Recreation complete. Created %d dirs, processed %d/%d files.",
		result.DirectoriesCreated, result.FilesWritten, total))

	return result, nil
}

// joinSafe joins a stored relative path onto root, rejecting paths that
// would land outside it.
func joinSafe(root, rel string) (string, error) {
	if !IsSafeRelativePath(rel) {
		return "", fmt.Errorf("%w: unsafe path %q", ErrValidation, rel)
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// Save persists snapshot to containerPath, encrypting when password is non-empty.
func (s *SagService) Save(snapshot *Snapshot, containerPath string, password string) error {
	if err := s.repository.Save(snapshot, containerPath, password); err != nil {
		s.logger.Error("saving snapshot failed", "path", containerPath, "error", err)
		return err
	}
	s.logger.Info("snapshot saved", "path", containerPath, "files", snapshot.FileCount(), "encrypted", password != "")
	return nil
}

// Load reads a snapshot from containerPath.
func (s *SagService) Load(containerPath string, password string) (*Snapshot, error) {
	snapshot, err := s.repository.Load(containerPath, password)
	if err != nil {
		s.logger.Warn("loading snapshot failed", "path", containerPath, "error", err)
		return nil, err
	}
	s.logger.Info("snapshot loaded", "path", containerPath, "files", snapshot.FileCount())
	return snapshot, nil
}

// Inspect reports container facts that need no password.
func (s *SagService) Inspect(containerPath string) (*ContainerInfo, error) {
	return s.repository.Inspect(containerPath)
}

// Verify loads containerPath, revalidates it and returns its statistics.
func (s *SagService) Verify(containerPath string, password string) (*Statistics, error) {
	snapshot, err := s.Load(containerPath, password)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	stats := snapshot.Statistics()
	return &stats, nil
}
