// Package storetest opens throwaway in-memory stores for tests.
package storetest

import (
	"testing"

	"bandalloc/pkg/config"
	"bandalloc/pkg/store"

	"gorm.io/gorm"
)

// Config returns a configuration pointing at a private in-memory SQLite database.
func Config() config.Config {
	cfg := config.Defaults()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	return cfg
}

// Open returns a migrated in-memory store that is closed when the test ends.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	return OpenWith(t, Config())
}

func OpenWith(t *testing.T, cfg config.Config) *gorm.DB {
	t.Helper()
	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
