// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are read from an fs.FS, usually an embedded directory, and must be named
// {version}_{description}.sql (for example "001_initial_schema.sql"). Versions must form a
// continuous sequence. Each file runs in its own transaction and is recorded in the
// schema_migrations table together with its checksum, so a file that changes after it was
// applied is reported instead of silently ignored.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(schemaFS, "schema"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
