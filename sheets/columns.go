// ABOUTME: Header migration for tabs whose live header row lacks required columns
// ABOUTME: Columns are moved by position into the new layout so no existing value is lost
package sheets

import (
	"context"
	"fmt"
)

// EnsureColumns makes sure every required header is present on title.
// When columns are missing, the tab is rewritten with required headers first
// followed by every other live column in its original position order, and
// the rows are appended back with the new columns empty. Columns are moved
// by position, so cells under blank or repeated headers and cells past the
// last header survive. It returns the headers that were added.
func EnsureColumns(ctx context.Context, store Store, title string, required []string) ([]string, error) {
	live, err := store.Headers(ctx, title)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		rows, err := store.Rows(ctx, title)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, store.SetHeaders(ctx, title, required)
		}
		return nil, storeErr("ensure columns", title, fmt.Errorf("tab has %d rows but no header", len(rows)))
	}

	first := make(map[string]int, len(live))
	for i, h := range live {
		if _, seen := first[h]; !seen && h != "" {
			first[h] = i
		}
	}
	var missing []string
	for _, h := range required {
		if _, ok := first[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	rows, err := store.Rows(ctx, title)
	if err != nil {
		return nil, err
	}

	headers, sources := migrationLayout(live, required, first, rows)

	migrated := make([][]string, len(rows))
	for i, values := range rows {
		out := make([]string, len(sources))
		for j, src := range sources {
			if src >= 0 && src < len(values) {
				out[j] = values[src]
			}
		}
		migrated[i] = out
	}

	if err := store.Clear(ctx, title); err != nil {
		return nil, err
	}
	if err := store.SetHeaders(ctx, title, headers); err != nil {
		return nil, err
	}
	if err := store.Append(ctx, title, migrated); err != nil {
		return nil, err
	}
	return missing, nil
}

// migrationLayout returns the new header row and, for each new column, the
// old column index it is copied from (-1 for an added column).
func migrationLayout(live, required []string, first map[string]int, rows [][]string) ([]string, []int) {
	width := len(live)
	for _, r := range rows {
		width = max(width, len(r))
	}

	headers := make([]string, 0, len(required)+width)
	sources := make([]int, 0, len(required)+width)
	used := make(map[int]bool, len(required))
	for _, h := range required {
		src, ok := first[h]
		if !ok {
			src = -1
		} else {
			used[src] = true
		}
		headers = append(headers, h)
		sources = append(sources, src)
	}
	for i := 0; i < width; i++ {
		if used[i] {
			continue
		}
		h := ""
		if i < len(live) {
			h = live[i]
		}
		headers = append(headers, h)
		sources = append(sources, i)
	}
	return headers, sources
}
