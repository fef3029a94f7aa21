package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp_CreatesTables(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	for _, table := range []string{"settings", "archives", "operations", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	db := openTestDB(t)

	if err := CheckStatus(db); !errors.Is(err, ErrNoSchema) {
		t.Fatalf("CheckStatus() before migration = %v, want ErrNoSchema", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after migration = %v", err)
	}

	// Running again is a no-op.
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after second migration = %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("LatestVersion() = %d, want 1", v)
	}
}

func TestSchema_ArchiveNameUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	insert := `INSERT INTO archives (id, name, checksum, stored_checksum, size, archived_at)
		VALUES (?, 'daily.sag', 'c', 's', 1, datetime('now'))`
	if _, err := db.Exec(insert, "a-1"); err != nil {
		t.Fatalf("first insert error = %v", err)
	}
	if _, err := db.Exec(insert, "a-2"); err == nil {
		t.Error("expected unique constraint violation for duplicate archive name")
	}
}

func TestSchema_OperationDefaults(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	res, err := db.Exec("INSERT INTO operations (operation, started_at) VALUES ('Capture', datetime('now'))")
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	id, _ := res.LastInsertId()

	var status, params string
	if err := db.QueryRow("SELECT status, parameters FROM operations WHERE id = ?", id).Scan(&status, &params); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if status != "running" || params != "" {
		t.Errorf("defaults = (%q, %q), want (running, \"\")", status, params)
	}
}
