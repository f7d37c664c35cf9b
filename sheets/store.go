// ABOUTME: Spreadsheet store abstraction shared by the Google and in-memory backends
// ABOUTME: Tabs are addressed by title; the first row of each tab holds the headers
package sheets

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// Store is the minimal spreadsheet surface the workflow needs.
type Store interface {
	// Ensure creates the tab when it does not exist and writes headers into an
	// empty tab. It reports whether the tab was created.
	Ensure(ctx context.Context, title string, headers []string) (bool, error)
	Headers(ctx context.Context, title string) ([]string, error)
	Clear(ctx context.Context, title string) error
	SetHeaders(ctx context.Context, title string, headers []string) error
	Append(ctx context.Context, title string, rows [][]string) error
	// Rows returns data rows below the header, padded to the header width.
	Rows(ctx context.Context, title string) ([][]string, error)
	// UpdateCells overwrites cells of one data row. row is 0-based below the
	// header; cells maps 0-based column index to value.
	UpdateCells(ctx context.Context, title string, row int, cells map[int]string) error
}

// StoreError marks a failed spreadsheet read or write. Results cannot be
// trusted after one, so the workflow aborts.
type StoreError struct {
	Op    string
	Title string
	Code  int
	Err   error
}

func (e *StoreError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("sheet %q: %s failed (HTTP %d): %v", e.Title, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("sheet %q: %s failed: %v", e.Title, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, title string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	out := &StoreError{Op: op, Title: title, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		out.Code = apiErr.Code
	}
	return out
}

// Row is a data row keyed by header name.
type Row map[string]string

// rowFromValues keys values by headers. Missing trailing cells become "".
func rowFromValues(headers []string, values []string) Row {
	r := make(Row, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if i < len(values) {
			r[h] = values[i]
		} else {
			r[h] = ""
		}
	}
	return r
}

// valuesFromRow lays a Row out in header order.
func valuesFromRow(headers []string, r Row) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = r[h]
	}
	return out
}
