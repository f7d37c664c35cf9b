// ABOUTME: Run ledger schema definitions
// ABOUTME: One row per run plus an audit trail of per-entity outcomes
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
	stage TEXT,
	error_message TEXT,
	summary_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

CREATE TABLE IF NOT EXISTS run_log (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	logged_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_run_log_run ON run_log(run_id);
CREATE INDEX IF NOT EXISTS idx_run_log_entity ON run_log(entity_type, entity_id);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
