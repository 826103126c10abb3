package database

import (
	"context"
	"testing"

	"gorm.io/gorm"
)

// OpenTest returns a migrated in-memory SQLite database with foreign keys on.
func OpenTest(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := Open(context.Background(), Options{
		Driver:   "sqlite",
		DSN:      "file::memory:?_foreign_keys=on",
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open test database failed: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate test database failed: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}
