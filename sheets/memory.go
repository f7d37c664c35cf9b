// ABOUTME: In-memory Store used by tests and dry runs
// ABOUTME: Mirrors the Google backend's header and padding behaviour
package sheets

import (
	"context"
	"fmt"
	"sync"
)

type memTab struct {
	headers []string
	rows    [][]string
}

// MemoryStore keeps tabs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	tabs map[string]*memTab
	// Fail makes the named operation ("append", "clear", ...) return the error.
	Fail map[string]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tabs: make(map[string]*memTab), Fail: make(map[string]error)}
}

func (m *MemoryStore) failure(op string) error {
	if err, ok := m.Fail[op]; ok && err != nil {
		return err
	}
	return nil
}

func (m *MemoryStore) tab(title string) (*memTab, error) {
	t, ok := m.tabs[title]
	if !ok {
		return nil, fmt.Errorf("no tab named %q", title)
	}
	return t, nil
}

// Seed replaces a tab's content. Test helper.
func (m *MemoryStore) Seed(title string, headers []string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTab{headers: append([]string(nil), headers...)}
	for _, r := range rows {
		t.rows = append(t.rows, append([]string(nil), r...))
	}
	m.tabs[title] = t
}

func (m *MemoryStore) Ensure(ctx context.Context, title string, headers []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ensure"); err != nil {
		return false, storeErr("ensure", title, err)
	}
	t, ok := m.tabs[title]
	if !ok {
		m.tabs[title] = &memTab{headers: append([]string(nil), headers...)}
		return true, nil
	}
	if len(t.headers) == 0 && len(t.rows) == 0 {
		t.headers = append([]string(nil), headers...)
	}
	return false, nil
}

func (m *MemoryStore) Headers(ctx context.Context, title string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("headers"); err != nil {
		return nil, storeErr("headers", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return nil, storeErr("headers", title, err)
	}
	return append([]string(nil), t.headers...), nil
}

func (m *MemoryStore) Clear(ctx context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("clear"); err != nil {
		return storeErr("clear", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return storeErr("clear", title, err)
	}
	t.headers, t.rows = nil, nil
	return nil
}

func (m *MemoryStore) SetHeaders(ctx context.Context, title string, headers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("set_headers"); err != nil {
		return storeErr("set headers", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return storeErr("set headers", title, err)
	}
	t.headers = append([]string(nil), headers...)
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, title string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("append"); err != nil {
		return storeErr("append", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return storeErr("append", title, err)
	}
	for _, r := range rows {
		t.rows = append(t.rows, append([]string(nil), r...))
	}
	return nil
}

func (m *MemoryStore) Rows(ctx context.Context, title string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("rows"); err != nil {
		return nil, storeErr("rows", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return nil, storeErr("rows", title, err)
	}
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = pad(r, len(t.headers))
	}
	return out, nil
}

func (m *MemoryStore) UpdateCells(ctx context.Context, title string, row int, cells map[int]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update"); err != nil {
		return storeErr("update", title, err)
	}
	t, err := m.tab(title)
	if err != nil {
		return storeErr("update", title, err)
	}
	if row < 0 || row >= len(t.rows) {
		return storeErr("update", title, fmt.Errorf("row %d out of range", row))
	}
	for col, v := range cells {
		for len(t.rows[row]) <= col {
			t.rows[row] = append(t.rows[row], "")
		}
		t.rows[row][col] = v
	}
	return nil
}

func pad(r []string, width int) []string {
	out := make([]string, max(width, len(r)))
	copy(out, r)
	return out
}
