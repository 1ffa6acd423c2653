// Package sqlitetest opens migrated throwaway SQLite databases for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
	"go.uber.org/zap"
)

// Open creates a fresh database file under t.TempDir with every migration applied
func Open(t testing.TB) *sqlite.DB {
	t.Helper()

	logger := zap.NewNop()
	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "expenses.db"),
		MaxOpenConns: 4,
	}, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	if _, err := database.NewMigrator(raw, logger).Run(migrations.FS); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return sqlite.NewDB(raw.DB, logger)
}
