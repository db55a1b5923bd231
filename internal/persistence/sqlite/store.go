package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/persistence/sqlite/migration"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store bundles the SQLite repositories over a single connection pool.
type Store struct {
	*UserRepository
	*MeetingRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.UserRepository    = (*Store)(nil)
	_ persistence.MeetingRepository = (*Store)(nil)
)

// Open connects to the database described by cfg. Call Migrate before first use.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Store{
		UserRepository:    NewUserRepository(pool),
		MeetingRepository: NewMeetingRepository(pool),
		pool:              pool,
		logger:            logger.With("component", "sqlite", "path", cfg.Path),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(schemaFS, "schema"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
