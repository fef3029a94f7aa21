package sag_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"sag-go/internal/encoding"
	"sag-go/internal/encryption"
	"sag-go/internal/repository"
	"sag-go/internal/sag"
	"sag-go/internal/testutil"
)

func newTestService(t *testing.T, fs sag.FileSystem, settings sag.Settings) *sag.SagService {
	t.Helper()
	repo := repository.NewJSONRepository(encoding.NewBase64Encoder(), encryption.NewAESGCMEncryptor())
	return sag.NewSagService(fs, repo, settings, sag.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
}

func sampleTree() *testutil.MockFileSystem {
	fs := testutil.NewMockFileSystem()
	fs.AddFile("/src/a.txt", []byte("alpha"))
	fs.AddFile("/src/sub/b.py", []byte("print('b')"))
	fs.AddFile("/src/sub/c.log", []byte("ignored"))
	return fs
}

func TestSagService_Scan(t *testing.T) {
	t.Run("captures matching files and their directories", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, sampleTree(), sag.DefaultSettings())

		result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		s := result.Snapshot

		var paths []string
		for _, f := range s.Files {
			paths = append(paths, f.RelativePath)
		}
		if !reflect.DeepEqual(paths, []string{"a.txt", "sub/b.py"}) {
			t.Errorf("files = %v", paths)
		}
		if s.DirectoryCount() != 1 || s.Directories[0].RelativePath != "sub" {
			t.Errorf("directories = %v", s.Directories)
		}
		if s.RootPath != "/src" {
			t.Errorf("RootPath = %q", s.RootPath)
		}
		if !s.CreatedAt.Equal(testutil.FixedClock().Now()) {
			t.Errorf("CreatedAt = %v", s.CreatedAt)
		}
		if s.Metadata["snapshot_id"] != "id-1" {
			t.Errorf("snapshot_id = %v", s.Metadata["snapshot_id"])
		}
		if len(result.Skipped) != 0 {
			t.Errorf("Skipped = %v", result.Skipped)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("records nested ancestors once", func(t *testing.T) {
		t.Parallel()
		fs := testutil.NewMockFileSystem()
		fs.AddFile("/src/a/b/c/deep.md", []byte("d"))
		fs.AddFile("/src/a/b/other.md", []byte("o"))
		fs.AddDirectory("/src/empty")
		svc := newTestService(t, fs, sag.DefaultSettings())

		result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{"md"}})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		var dirs []string
		for _, d := range result.Snapshot.Directories {
			dirs = append(dirs, d.RelativePath)
		}
		if !reflect.DeepEqual(dirs, []string{"a", "a/b", "a/b/c"}) {
			t.Errorf("directories = %v", dirs)
		}
	})

	t.Run("skips unreadable and oversized files", func(t *testing.T) {
		t.Parallel()
		fs := sampleTree()
		fs.AddFile("/src/big.txt", []byte(strings.Repeat("x", 100)))
		fs.ReadErrors["/src/sub/b.py"] = errors.New("permission denied")
		svc := newTestService(t, fs, sag.Settings{MaxFileSize: 50})

		result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if result.Snapshot.FileCount() != 1 || result.Snapshot.Files[0].RelativePath != "a.txt" {
			t.Errorf("files = %v", result.Snapshot.Files)
		}
		if len(result.Skipped) != 2 {
			t.Fatalf("Skipped = %v, want 2 entries", result.Skipped)
		}
		if result.Skipped[0].Path != "big.txt" || result.Skipped[1].Path != "sub/b.py" {
			t.Errorf("Skipped paths = %v", result.Skipped)
		}
		if !errors.Is(result.Skipped[1].Err, sag.ErrFileSystem) {
			t.Errorf("Skipped error = %v, want ErrFileSystem", result.Skipped[1].Err)
		}
		if result.Snapshot.Metadata["skipped_files"] != 2 {
			t.Errorf("skipped_files = %v", result.Snapshot.Metadata["skipped_files"])
		}
	})

	t.Run("skips unreadable subdirectories", func(t *testing.T) {
		t.Parallel()
		fs := sampleTree()
		fs.AddFile("/src/locked/x.txt", []byte("x"))
		fs.UnreadableDirs["/src/locked"] = errors.New("permission denied")
		svc := newTestService(t, fs, sag.DefaultSettings())

		result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		var paths []string
		for _, f := range result.Snapshot.Files {
			paths = append(paths, f.RelativePath)
		}
		if !reflect.DeepEqual(paths, []string{"a.txt", "sub/b.py"}) {
			t.Errorf("files = %v", paths)
		}
		if len(result.Skipped) != 1 || result.Skipped[0].Path != "locked" {
			t.Fatalf("Skipped = %v, want [locked]", result.Skipped)
		}
		if !errors.Is(result.Skipped[0].Err, sag.ErrFileSystem) {
			t.Errorf("Skipped error = %v, want ErrFileSystem", result.Skipped[0].Err)
		}
	})

	t.Run("reports progress in order", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, sampleTree(), sag.DefaultSettings())
		obs := &testutil.RecordingObserver{}

		if _, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}, Observer: obs}); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		want := []testutil.Progress{{Current: 0, Total: 2}, {Current: 1, Total: 2}, {Current: 2, Total: 2}}
		if got := obs.Progress(); !reflect.DeepEqual(got, want) {
			t.Errorf("progress = %v, want %v", got, want)
		}
		if len(obs.Logs()) == 0 {
			t.Error("no log messages recorded")
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, sampleTree(), sag.DefaultSettings())

		tests := []struct {
			name    string
			req     sag.ScanRequest
			wantErr error
		}{
			{"empty root", sag.ScanRequest{Extensions: []string{".txt"}}, nil},
			{"no extensions", sag.ScanRequest{RootPath: "/src"}, nil},
			{"missing root", sag.ScanRequest{RootPath: "/nope", Extensions: []string{".txt"}}, sag.ErrFileSystem},
		}
		for _, tt := range tests {
			_, err := svc.Scan(tt.req)
			if err == nil {
				t.Errorf("%s: Scan() expected error", tt.name)
				continue
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: Scan() error = %v, want %v", tt.name, err, tt.wantErr)
			}
		}
	})

	t.Run("listing failure is fatal", func(t *testing.T) {
		t.Parallel()
		fs := sampleTree()
		fs.ListError = errors.New("io error")
		svc := newTestService(t, fs, sag.DefaultSettings())

		_, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt"}})
		if !errors.Is(err, sag.ErrFileSystem) {
			t.Errorf("Scan() error = %v, want ErrFileSystem", err)
		}
	})
}

func TestSagService_Recreate(t *testing.T) {
	scanned := func(t *testing.T) *sag.Snapshot {
		t.Helper()
		svc := newTestService(t, sampleTree(), sag.DefaultSettings())
		result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}})
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		return result.Snapshot
	}

	t.Run("writes every directory and file", func(t *testing.T) {
		t.Parallel()
		out := testutil.NewMockFileSystem()
		svc := newTestService(t, out, sag.DefaultSettings())

		result, err := svc.Recreate(sag.RecreateRequest{Snapshot: scanned(t), OutputPath: "/out"})
		if err != nil {
			t.Fatalf("Recreate() error = %v", err)
		}
		if result.DirectoriesCreated != 1 || result.FilesWritten != 2 || len(result.Failed) != 0 {
			t.Errorf("result = %+v", result)
		}
		if got, _ := out.File("/out/sub/b.py"); string(got) != "print('b')" {
			t.Errorf("/out/sub/b.py = %q", got)
		}
		if !out.DirectoryExists("/out/sub") {
			t.Error("/out/sub not created")
		}
		if _, ok := out.File("/out/sub/c.log"); ok {
			t.Error("filtered file was recreated")
		}
	})

	t.Run("continues past item failures", func(t *testing.T) {
		t.Parallel()
		out := testutil.NewMockFileSystem()
		out.WriteErrors["/out/a.txt"] = errors.New("disk full")
		svc := newTestService(t, out, sag.DefaultSettings())

		result, err := svc.Recreate(sag.RecreateRequest{Snapshot: scanned(t), OutputPath: "/out"})
		if err != nil {
			t.Fatalf("Recreate() error = %v", err)
		}
		if result.FilesWritten != 1 || len(result.Failed) != 1 || result.Failed[0].Path != "a.txt" {
			t.Errorf("result = %+v", result)
		}
		if _, ok := out.File("/out/sub/b.py"); !ok {
			t.Error("later file not written after earlier failure")
		}
	})

	t.Run("rejects paths escaping the output", func(t *testing.T) {
		t.Parallel()
		snap := sag.NewSnapshot("/src", testutil.FixedClock().Now())
		snap.AddFile(sag.NewFileEntry("../evil.txt", []byte("x")))
		snap.AddFile(sag.NewFileEntry("fine.txt", []byte("y")))
		out := testutil.NewMockFileSystem()
		svc := newTestService(t, out, sag.DefaultSettings())

		result, err := svc.Recreate(sag.RecreateRequest{Snapshot: snap, OutputPath: "/out"})
		if err != nil {
			t.Fatalf("Recreate() error = %v", err)
		}
		if len(result.Failed) != 1 || !errors.Is(result.Failed[0].Err, sag.ErrValidation) {
			t.Errorf("Failed = %v", result.Failed)
		}
		for _, p := range out.Paths() {
			if !strings.HasPrefix(p, "/out/") {
				t.Errorf("file written outside output: %s", p)
			}
		}
	})

	t.Run("output root failure is fatal", func(t *testing.T) {
		t.Parallel()
		out := testutil.NewMockFileSystem()
		out.DirErrors["/out"] = errors.New("read-only")
		svc := newTestService(t, out, sag.DefaultSettings())

		_, err := svc.Recreate(sag.RecreateRequest{Snapshot: scanned(t), OutputPath: "/out"})
		if !errors.Is(err, sag.ErrFileSystem) {
			t.Errorf("Recreate() error = %v, want ErrFileSystem", err)
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, testutil.NewMockFileSystem(), sag.DefaultSettings())
		if _, err := svc.Recreate(sag.RecreateRequest{OutputPath: "/out"}); err == nil {
			t.Error("Recreate() expected error for nil snapshot")
		}
		if _, err := svc.Recreate(sag.RecreateRequest{Snapshot: scanned(t)}); err == nil {
			t.Error("Recreate() expected error for empty output")
		}
	})
}

func TestSagService_SaveLoadVerify(t *testing.T) {
	svc := newTestService(t, sampleTree(), sag.DefaultSettings())
	result, err := svc.Scan(sag.ScanRequest{RootPath: "/src", Extensions: []string{".txt", ".py"}})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	dir := t.TempDir()

	t.Run("plain container", func(t *testing.T) {
		p := filepath.Join(dir, "plain.sag")
		if err := svc.Save(result.Snapshot, p, ""); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		loaded, err := svc.Load(p, "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if loaded.FileCount() != 2 || loaded.DirectoryCount() != 1 {
			t.Errorf("loaded = %v", loaded)
		}
		info, err := svc.Inspect(p)
		if err != nil || info.Encrypted {
			t.Errorf("Inspect() = %+v, %v", info, err)
		}
	})

	t.Run("encrypted container", func(t *testing.T) {
		p := filepath.Join(dir, "secret.sag")
		if err := svc.Save(result.Snapshot, p, "hunter2"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		info, err := svc.Inspect(p)
		if err != nil || !info.Encrypted {
			t.Errorf("Inspect() = %+v, %v", info, err)
		}
		if _, err := svc.Load(p, ""); !errors.Is(err, sag.ErrPasswordRequired) {
			t.Errorf("Load() without password error = %v, want ErrPasswordRequired", err)
		}
		if _, err := svc.Load(p, "wrong"); !errors.Is(err, sag.ErrInvalidPassword) {
			t.Errorf("Load() wrong password error = %v, want ErrInvalidPassword", err)
		}

		stats, err := svc.Verify(p, "hunter2")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if stats.FileCount != 2 || stats.TotalSize != int64(len("alpha")+len("print('b')")) {
			t.Errorf("Verify() stats = %+v", stats)
		}
	})

	t.Run("missing container", func(t *testing.T) {
		_, err := svc.Load(filepath.Join(dir, "nope.sag"), "")
		if !errors.Is(err, sag.ErrSnapshotNotFound) {
			t.Errorf("Load() error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("corrupt container", func(t *testing.T) {
		p := filepath.Join(dir, "corrupt.sag")
		if err := os.WriteFile(p, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Verify(p, ""); !errors.Is(err, sag.ErrInvalidSnapshot) {
			t.Errorf("Verify() error = %v, want ErrInvalidSnapshot", err)
		}
	})
}
