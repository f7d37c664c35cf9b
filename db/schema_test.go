// ABOUTME: Tests for ledger schema creation
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestInitSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema should be repeatable: %v", err)
	}

	indexes := []string{
		"idx_runs_started_at",
		"idx_runs_status",
		"idx_run_log_run",
		"idx_run_log_entity",
	}
	for _, idx := range indexes {
		var indexName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&indexName)
		if err != nil {
			t.Errorf("Index %s not found: %v", idx, err)
		}
	}

	_, err = db.Exec(`INSERT INTO runs (id, started_at, status) VALUES ('x', CURRENT_TIMESTAMP, 'paused')`)
	if err == nil {
		t.Error("status outside running/succeeded/failed should be rejected")
	}
}
