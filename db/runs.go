// ABOUTME: Database operations for the runs and run_log tables
// ABOUTME: Guards against overlapping runs and records per-entity outcomes
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DefaultStaleAfter is how long a "running" row blocks new runs.
const DefaultStaleAfter = time.Hour

// ErrRunInProgress means another run is recorded as running.
var ErrRunInProgress = errors.New("another run is in progress")

// Run is one row of the runs table.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string
	Stage        string
	ErrorMessage string
	SummaryJSON  string
}

// Entry is one row of the run_log table.
type Entry struct {
	ID         string
	RunID      string
	EntityType string
	EntityID   int64
	Outcome    string
	Detail     string
	LoggedAt   time.Time
}

// Ledger records runs in the SQLite database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewLedger wraps an open database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (l *Ledger) newID(at time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), l.entropy).String()
}

// Begin records a new running run and returns its id. A run still marked
// running and younger than staleAfter blocks the new one unless force is set.
// Older running rows are closed as failed.
func (l *Ledger) Begin(ctx context.Context, staleAfter time.Duration, force bool) (string, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	now := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, started_at FROM runs WHERE status = ?`, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to query running runs: %w", err)
	}
	type running struct {
		id      string
		started time.Time
	}
	var open []running
	for rows.Next() {
		var r running
		if err := rows.Scan(&r.id, &r.started); err != nil {
			_ = rows.Close()
			return "", fmt.Errorf("failed to scan run: %w", err)
		}
		open = append(open, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating runs: %w", err)
	}

	for _, r := range open {
		stale := now.Sub(r.started) > staleAfter
		if !stale && !force {
			return "", fmt.Errorf("%w: run %s started at %s", ErrRunInProgress, r.id, r.started.Format(time.RFC3339))
		}
		reason := "abandoned"
		if !stale {
			reason = "superseded by forced run"
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE runs SET status = ?, finished_at = ?, error_message = ?
			WHERE id = ?
		`, StatusFailed, now, reason, r.id); err != nil {
			return "", fmt.Errorf("failed to close run %s: %w", r.id, err)
		}
	}

	id := l.newID(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)
	`, id, now, StatusRunning); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// Finish closes a run. runErr nil marks it succeeded.
func (l *Ledger) Finish(ctx context.Context, id, stage string, runErr error, summary any) error {
	status := StatusSucceeded
	var errMsg sql.NullString
	if runErr != nil {
		status = StatusFailed
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	var summaryJSON sql.NullString
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, stage = ?, error_message = ?, summary_json = ?
		WHERE id = ?
	`, status, l.now().UTC(), stage, errMsg, summaryJSON, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Recent returns the newest runs first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, stage, error_message, summary_json
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var stage, errMsg, summary sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &stage, &errMsg, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		r.Stage = stage.String
		r.ErrorMessage = errMsg.String
		r.SummaryJSON = summary.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// AddEntry appends one audit entry to a run.
func (l *Ledger) AddEntry(ctx context.Context, runID, entityType string, entityID int64, outcome, detail string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO run_log (id, run_id, entity_type, entity_id, outcome, detail, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), runID, entityType, entityID, outcome, detail, l.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create run log entry: %w", err)
	}
	return nil
}

// Entries returns a run's audit trail in insertion order.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, entity_type, entity_id, outcome, detail, logged_at
		FROM run_log
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.EntityType, &e.EntityID, &e.Outcome, &detail, &e.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run log entry: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run log: %w", err)
	}
	return entries, nil
}

// RunJournal writes workflow audit entries for one run. Write failures are
// logged and dropped.
type RunJournal struct {
	ledger *Ledger
	runID  string
	logger *log.Logger
}

// NewRunJournal returns a journal bound to runID.
func NewRunJournal(ledger *Ledger, runID string, logger *log.Logger) *RunJournal {
	if logger == nil {
		logger = log.Default()
	}
	return &RunJournal{ledger: ledger, runID: runID, logger: logger}
}

func (j *RunJournal) Log(entityType string, entityID int64, outcome, detail string) {
	if err := j.ledger.AddEntry(context.Background(), j.runID, entityType, entityID, outcome, detail); err != nil {
		j.logger.Warn("run log write failed", "run", j.runID, "entity", entityType, "id", entityID, "err", err)
	}
}
