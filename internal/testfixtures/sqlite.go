package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/persistence/appstore"
	"github.com/example/meeting-service/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a migrated SQLite database in a
// temporary directory.
type SQLiteHarness struct {
	Users    persistence.UserRepository
	Meetings persistence.MeetingRepository
	// App adapts the repositories to the application service interfaces.
	App *appstore.Store

	store *sqlite.Store
}

// NewSQLiteHarness opens and migrates a fresh database. It is closed through tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(tb.TempDir(), "meetings.db")), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Users:    store,
		Meetings: store,
		App:      appstore.New(store, store),
		store:    store,
	}
}

// SeedUsers inserts the fixtures as accounts.
func (h *SQLiteHarness) SeedUsers(tb testing.TB, fixtures ...UserFixture) {
	tb.Helper()
	for _, f := range fixtures {
		if err := h.Users.CreateUser(context.Background(), f.Persistence()); err != nil {
			tb.Fatalf("failed to seed user %s: %v", f.ID, err)
		}
	}
}
