package migrations_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/playperu/wayfinder/internal/database"
	"github.com/playperu/wayfinder/internal/migrations"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := migrations.Run(ctx, db, logger); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	for _, table := range []string{"geocode_cache"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	v, err := migrations.Version(ctx, db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := migrations.Run(ctx, db, logger); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(ctx, db, logger); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}
