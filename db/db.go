// ABOUTME: Run ledger connection management and initialization
// ABOUTME: Opens the SQLite ledger with WAL mode at the XDG data path
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where the ledger lives unless configured otherwise.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "latecancel", "runs.db")
}

// OpenDatabase opens (or creates) the ledger at path. ":memory:" is accepted
// for tests.
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: avoids "database is locked" and keeps :memory: a single database
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
