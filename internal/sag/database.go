package sag

import "sag-go/internal/model"

// Database is the local catalog of archives and operations.
type Database interface {
	// CreateArchive records a pushed archive. Names are unique.
	CreateArchive(archive *model.Archive) error

	// FindArchiveByName returns nil and no error when no archive has that name.
	FindArchiveByName(name string) (*model.Archive, error)

	// ListArchives returns all archives, newest first.
	ListArchives() ([]*model.Archive, error)

	CreateOperation(operation string, parameters string) (*model.Operation, error)
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// MaxOperationID is the catalog version uploaded to the vault.
	MaxOperationID() (int64, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error

	Close() error
}
