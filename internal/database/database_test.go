package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenInDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	db, err := OpenInDir(context.Background(), dir, "wayfinder.db")
	if err != nil {
		t.Fatalf("OpenInDir: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("reading journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
