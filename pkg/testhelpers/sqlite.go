// Package testhelpers provides shared test infrastructure.
package testhelpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/atelier-ops/link-engine/pkg/database"
)

// OpenTestDB opens a migrated SQLite database in a per-test temp directory.
// The file is removed with the temp dir when the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "link-engine-test.db")

	db, err := database.Open(path, 5000, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := database.RunMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}
