package database

import (
	"os"
	"path/filepath"
	"testing"

	"sag-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database is migrated", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, "host-1")
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() = %v", err)
		}
	})

	t.Run("sqlite database is created under data_dir", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "db")
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dataDir}, "host-1")
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() error = %v", err)
		}
		defer got.Close()

		if got.Path() != filepath.Join(dataDir, "host-1.db") {
			t.Errorf("Path() = %q", got.Path())
		}
		if err := got.Migrate(); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
		if _, err := os.Stat(got.Path()); err != nil {
			t.Errorf("database file missing: %v", err)
		}
	})

	t.Run("errors", func(t *testing.T) {
		for _, cfg := range []config.DatabaseConfig{
			{Type: "sqlite"},
			{Type: "postgres"},
			{},
		} {
			got, err := NewDatabaseFromConfig(cfg, "host-1")
			if err == nil {
				got.Close()
				t.Errorf("NewDatabaseFromConfig(%+v) expected error", cfg)
			}
		}
	})
}
