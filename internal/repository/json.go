package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	sagfs "sag-go/internal/fs"
	"sag-go/internal/sag"
)

// naiveISOLayout matches timestamps written without a zone offset, as older
// containers were. They are read in local time.
const naiveISOLayout = "2006-01-02T15:04:05.999999999"

// JSONRepository stores snapshots as indented JSON documents, optionally
// wrapped in a password envelope.
type JSONRepository struct {
	encoder   sag.ContentEncoder
	encryptor sag.Encryptor
	now       func() time.Time
}

var _ sag.SnapshotRepository = (*JSONRepository)(nil)

// NewJSONRepository creates a repository using encoder for file content and
// encryptor for password-protected containers.
func NewJSONRepository(encoder sag.ContentEncoder, encryptor sag.Encryptor) *JSONRepository {
	return &JSONRepository{
		encoder:   encoder,
		encryptor: encryptor,
		now:       time.Now,
	}
}

type containerRecord struct {
	RootPath    string         `json:"root_path"`
	CreatedAt   string         `json:"created_at"`
	Metadata    map[string]any `json:"metadata"`
	Directories []string       `json:"directories"`
	Files       []fileRecord   `json:"files"`
}

type fileRecord struct {
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	Checksum      string `json:"checksum"`
	ContentBase64 string `json:"content_base64"`
}

// Loaded records use pointers so absent fields can be told from zero values.
type loadedContainer struct {
	RootPath    string              `json:"root_path"`
	CreatedAt   *string             `json:"created_at"`
	Metadata    map[string]any      `json:"metadata"`
	Directories []string            `json:"directories"`
	Files       *[]loadedFileRecord `json:"files"`
}

type loadedFileRecord struct {
	Path          *string `json:"path"`
	Size          *int64  `json:"size"`
	Checksum      *string `json:"checksum"`
	ContentBase64 *string `json:"content_base64"`
}

func (r *JSONRepository) Save(snapshot *sag.Snapshot, path string, password string) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	data, err := r.marshal(snapshot)
	if err != nil {
		return err
	}

	if password != "" {
		data, err = r.encryptor.Encrypt(data, password)
		if err != nil {
			return err
		}
	}

	if err := sagfs.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("%w: saving snapshot to %s: %v", sag.ErrRepository, path, err)
	}
	return nil
}

func (r *JSONRepository) marshal(snapshot *sag.Snapshot) ([]byte, error) {
	rec := containerRecord{
		RootPath:    snapshot.RootPath,
		CreatedAt:   snapshot.CreatedAt.Format(time.RFC3339Nano),
		Metadata:    snapshot.Metadata,
		Directories: make([]string, 0, len(snapshot.Directories)),
		Files:       make([]fileRecord, 0, len(snapshot.Files)),
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	for _, d := range snapshot.Directories {
		rec.Directories = append(rec.Directories, d.RelativePath)
	}
	for _, f := range snapshot.Files {
		rec.Files = append(rec.Files, fileRecord{
			Path:          f.RelativePath,
			Size:          f.Size(),
			Checksum:      f.Checksum,
			ContentBase64: r.encoder.Encode(f.Content),
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("%w: encoding snapshot: %v", sag.ErrRepository, err)
	}
	return buf.Bytes(), nil
}

func (r *JSONRepository) Load(path string, password string) (*sag.Snapshot, error) {
	if !r.Exists(path) {
		return nil, fmt.Errorf("%w: %s", sag.ErrSnapshotNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: loading snapshot from %s: %v", sag.ErrRepository, path, err)
	}

	if r.encryptor.IsEncrypted(data) {
		if password == "" {
			return nil, fmt.Errorf("%w: %s is encrypted", sag.ErrPasswordRequired, path)
		}
		data, err = r.encryptor.Decrypt(data, password)
		if err != nil {
			return nil, err
		}
	}

	return r.unmarshal(data)
}

func (r *JSONRepository) unmarshal(data []byte) (*sag.Snapshot, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: container is not valid UTF-8", sag.ErrInvalidSnapshot)
	}

	var rec loadedContainer
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", sag.ErrInvalidSnapshot, err)
	}
	if rec.Files == nil {
		return nil, fmt.Errorf("%w: missing 'files' field", sag.ErrInvalidSnapshot)
	}

	createdAt := r.now()
	if rec.CreatedAt != nil {
		t, err := parseCreatedAt(*rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sag.ErrInvalidSnapshot, err)
		}
		createdAt = t
	}

	snapshot := sag.NewSnapshot(rec.RootPath, createdAt)
	if rec.Metadata != nil {
		snapshot.Metadata = rec.Metadata
	}
	for _, d := range rec.Directories {
		snapshot.AddDirectory(d)
	}

	for i, f := range *rec.Files {
		if f.Path == nil || f.ContentBase64 == nil {
			return nil, fmt.Errorf("%w: file entry %d missing required fields (path, content_base64)", sag.ErrInvalidSnapshot, i)
		}
		content, err := r.encoder.Decode(*f.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: file %q: %w", sag.ErrInvalidSnapshot, *f.Path, err)
		}
		if f.Size != nil && *f.Size != int64(len(content)) {
			return nil, fmt.Errorf("%w: file %q declares %d bytes, content has %d",
				sag.ErrInvalidSnapshot, *f.Path, *f.Size, len(content))
		}
		entry, err := sag.NewFileEntryFromRecord(*f.Path, f.Checksum, content)
		if err != nil {
			return nil, err
		}
		snapshot.AddFile(entry)
	}

	if err := snapshot.Validate(); err != nil {
		if errors.Is(err, sag.ErrChecksumMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", sag.ErrInvalidSnapshot, err)
	}
	return snapshot, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized created_at %q", s)
	}
	return t, nil
}

func (r *JSONRepository) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (r *JSONRepository) Inspect(path string) (*sag.ContainerInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sag.ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", sag.ErrRepository, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a file", sag.ErrSnapshotNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", sag.ErrRepository, path, err)
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: reading %s: %v", sag.ErrRepository, path, err)
	}

	return &sag.ContainerInfo{
		Path:      path,
		Size:      info.Size(),
		Encrypted: r.encryptor.IsEncrypted(header[:n]),
	}, nil
}
