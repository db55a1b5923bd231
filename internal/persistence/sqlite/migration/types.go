package migration

import (
	"context"
	"time"
)

// Migration is a single versioned SQL file.
type Migration struct {
	Version     string
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises the applied and pending migrations.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Source lists the available migrations in ascending version order.
type Source interface {
	ScanMigrations() ([]Migration, error)
}

// Executor runs migrations against a database and tracks which ones were applied.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	// ExecuteMigration runs the migration and records it in one transaction.
	ExecuteMigration(ctx context.Context, migration Migration) error
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
