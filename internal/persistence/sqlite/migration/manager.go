package migration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
)

// Manager applies pending migrations in version order.
type Manager struct {
	source   Source
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(source Source, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{source: source, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration and returns how many were applied. It stops at the first
// failure, leaving earlier migrations committed.
func (m *Manager) Run(ctx context.Context) (int, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	for i, migration := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration", "version", migration.Version, "description", migration.Description)
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "error", err)
			return i, err
		}
	}

	m.logger.InfoContext(ctx, "migrations applied", "count", len(status.Pending),
		"version", status.Pending[len(status.Pending)-1].Version)
	return len(status.Pending), nil
}

// Status compares the available migrations with the applied ones. It fails when an applied
// migration changed on disk or is missing, or when versions leave a gap.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	available, err := m.source.ScanMigrations()
	if err != nil {
		return Status{}, err
	}
	if err := checkSequence(available); err != nil {
		return Status{}, err
	}

	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		byVersion[versionNumber(migration.Version)] = migration
	}

	done := make(map[int]bool, len(applied))
	status := Status{Applied: applied}
	for _, a := range applied {
		number := versionNumber(a.Version)
		done[number] = true
		migration, ok := byVersion[number]
		if !ok {
			return Status{}, NewMigrationError(a.Version, "", "verify applied",
				fmt.Errorf("%w: applied migration has no file", ErrVersionConflict))
		}
		if a.Checksum != "" && a.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(a.Version, migration.FilePath, "verify applied", ErrChecksumMismatch)
		}
		status.CurrentVersion = a.Version
	}

	for _, migration := range available {
		if !done[versionNumber(migration.Version)] {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}

// checkSequence requires versions to start at 1 and increase without gaps.
func checkSequence(migrations []Migration) error {
	for i, migration := range migrations {
		if versionNumber(migration.Version) != i+1 {
			return NewMigrationError(migration.Version, migration.FilePath, "check sequence",
				fmt.Errorf("%w: expected version %d", ErrVersionConflict, i+1))
		}
	}
	return nil
}

func sortApplied(applied []AppliedMigration) {
	sort.Slice(applied, func(i, j int) bool {
		a, _ := strconv.Atoi(applied[i].Version)
		b, _ := strconv.Atoi(applied[j].Version)
		return a < b
	})
}
