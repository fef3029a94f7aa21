package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sag-go/internal/database/migrations"
	"sag-go/internal/model"
	"sag-go/internal/sag"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the local catalog. It records archives pushed to the
// vault and the operations that changed the catalog, and persists
// remembered settings.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ sag.Database      = (*SQLiteDatabase)(nil)
	_ sag.SettingsStore = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase opens the catalog at path, or ":memory:".
// The schema is not touched; see Migrate and CheckMigrations.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, path), nil
}

// NewSQLiteDatabaseFromDB wraps a connection opened with OpenConnection.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, path: path, now: time.Now}
}

// OpenConnection opens a SQLite connection with the PRAGMAs the catalog relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Archives

func (s *SQLiteDatabase) CreateArchive(a *model.Archive) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO archives (id, name, checksum, stored_checksum, size, password_protected, vault_encrypted, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Checksum, a.StoredChecksum, a.Size, a.PasswordProtected, a.VaultEncrypted, a.ArchivedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating archive %q: %w", a.Name, err)
	}
	return nil
}

const archiveColumns = `id, name, checksum, stored_checksum, size, password_protected, vault_encrypted, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*model.Archive, error) {
	var a model.Archive
	if err := row.Scan(&a.ID, &a.Name, &a.Checksum, &a.StoredChecksum, &a.Size,
		&a.PasswordProtected, &a.VaultEncrypted, &a.ArchivedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDatabase) FindArchiveByName(name string) (*model.Archive, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+archiveColumns+` FROM archives WHERE name = ?`, name)
	a, err := scanArchive(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding archive by name: %w", err)
	}
	return a, nil
}

func (s *SQLiteDatabase) ListArchives() ([]*model.Archive, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT `+archiveColumns+` FROM archives ORDER BY archived_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var result []*model.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning archive: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	return result, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation string, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.now().UTC(),
		Status:     "running",
	}
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, ?)`,
		op.Operation, op.Parameters, op.StartedAt, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		s.now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, operation, parameters, started_at, finished_at, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var op model.Operation
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.StartedAt, &op.FinishedAt, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Settings

func (s *SQLiteDatabase) GetString(key string, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteDatabase) SetString(key string, value string) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// GetList returns a list stored with SetList. Lists are stored as JSON arrays.
func (s *SQLiteDatabase) GetList(key string, def []string) ([]string, error) {
	raw, err := s.GetString(key, "")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return def, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decoding setting %q: %w", key, err)
	}
	return values, nil
}

func (s *SQLiteDatabase) SetList(key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", key, err)
	}
	return s.SetString(key, string(raw))
}

func (s *SQLiteDatabase) Delete(key string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is up to date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// BackupTo writes a consistent copy of the catalog to destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
