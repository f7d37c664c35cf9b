// ABOUTME: Repository implementations over a Store for the two workflow tabs
// ABOUTME: AppendOnlyLog never clears; RebuildTable is rewritten on every run
package sheets

import (
	"context"
	"errors"
	"fmt"
)

// ErrAppendOnly is returned when something tries to reset an append-only log.
var ErrAppendOnly = errors.New("append-only log cannot be cleared")

// Repository is the row-level view of one tab.
type Repository interface {
	Title() string
	Columns() []string
	List(ctx context.Context) ([]Row, error)
	AppendMany(ctx context.Context, rows []Row) error
	ClearAndReset(ctx context.Context) error
	MigrateSchema(ctx context.Context) ([]string, error)
}

type table struct {
	store   Store
	title   string
	columns []string
}

func (t *table) Title() string { return t.title }

func (t *table) Columns() []string { return append([]string(nil), t.columns...) }

// Prepare creates the tab when missing and migrates its header.
func (t *table) Prepare(ctx context.Context) ([]string, error) {
	if _, err := t.store.Ensure(ctx, t.title, t.columns); err != nil {
		return nil, err
	}
	return t.MigrateSchema(ctx)
}

func (t *table) MigrateSchema(ctx context.Context) ([]string, error) {
	return EnsureColumns(ctx, t.store, t.title, t.columns)
}

func (t *table) List(ctx context.Context) ([]Row, error) {
	headers, err := t.store.Headers(ctx, t.title)
	if err != nil {
		return nil, err
	}
	values, err := t.store.Rows(ctx, t.title)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = rowFromValues(headers, v)
	}
	return rows, nil
}

func (t *table) AppendMany(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	headers, err := t.store.Headers(ctx, t.title)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		headers = t.columns
	}
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = valuesFromRow(headers, r)
	}
	return t.store.Append(ctx, t.title, values)
}

// AppendOnlyLog is a tab that only ever grows.
type AppendOnlyLog struct {
	table
}

// NewAppendOnlyLog returns the log repository for title.
func NewAppendOnlyLog(store Store, title string, columns []string) *AppendOnlyLog {
	return &AppendOnlyLog{table{store: store, title: title, columns: columns}}
}

// ClearAndReset always fails for an append-only log.
func (l *AppendOnlyLog) ClearAndReset(ctx context.Context) error {
	return fmt.Errorf("%s: %w", l.title, ErrAppendOnly)
}

// UpdateRow overwrites the named cells of data row index.
func (l *AppendOnlyLog) UpdateRow(ctx context.Context, index int, values Row) error {
	headers, err := l.store.Headers(ctx, l.title)
	if err != nil {
		return err
	}
	pos := make(map[string]int, len(headers))
	for i, h := range headers {
		pos[h] = i
	}
	cells := make(map[int]string, len(values))
	for name, v := range values {
		col, ok := pos[name]
		if !ok {
			return storeErr("update", l.title, fmt.Errorf("unknown column %q", name))
		}
		cells[col] = v
	}
	return l.store.UpdateCells(ctx, l.title, index, cells)
}

// RebuildTable is a tab fully rewritten on each run.
type RebuildTable struct {
	table
}

// NewRebuildTable returns the rebuild repository for title.
func NewRebuildTable(store Store, title string, columns []string) *RebuildTable {
	return &RebuildTable{table{store: store, title: title, columns: columns}}
}

// ClearAndReset empties the tab and writes the column header.
func (r *RebuildTable) ClearAndReset(ctx context.Context) error {
	if err := r.store.Clear(ctx, r.title); err != nil {
		return err
	}
	return r.store.SetHeaders(ctx, r.title, r.columns)
}

// Replace resets the tab and writes rows.
func (r *RebuildTable) Replace(ctx context.Context, rows []Row) error {
	if err := r.ClearAndReset(ctx); err != nil {
		return err
	}
	return r.AppendMany(ctx, rows)
}

var (
	_ Repository = (*AppendOnlyLog)(nil)
	_ Repository = (*RebuildTable)(nil)
)
