// ABOUTME: Google Sheets v4 backed Store
// ABOUTME: Writes values RAW so formatted dates read back exactly as written
package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/api/sheets/v4"
)

// GoogleStore reads and writes tabs of one spreadsheet.
type GoogleStore struct {
	svc           *sheets.Service
	spreadsheetID string
	logger        *log.Logger
}

// NewGoogleStore wraps a Sheets service for the given spreadsheet.
func NewGoogleStore(svc *sheets.Service, spreadsheetID string, logger *log.Logger) *GoogleStore {
	if logger == nil {
		logger = log.Default()
	}
	return &GoogleStore{svc: svc, spreadsheetID: spreadsheetID, logger: logger}
}

// a1 quotes a tab title for A1 notation.
func a1(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// columnName converts a 0-based index to A, B, ..., Z, AA, AB, ...
func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

func (g *GoogleStore) tabExists(ctx context.Context, title string) (bool, error) {
	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return false, err
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (g *GoogleStore) Ensure(ctx context.Context, title string, headers []string) (bool, error) {
	exists, err := g.tabExists(ctx, title)
	if err != nil {
		return false, storeErr("ensure", title, err)
	}

	created := false
	if !exists {
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
			}},
		}
		if _, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return false, storeErr("create tab", title, err)
		}
		g.logger.Info("created sheet tab", "title", title)
		created = true
	}

	current, err := g.Headers(ctx, title)
	if err != nil {
		return created, err
	}
	if len(current) == 0 {
		if err := g.SetHeaders(ctx, title, headers); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (g *GoogleStore) Headers(ctx context.Context, title string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, a1(title)+"!1:1").Context(ctx).Do()
	if err != nil {
		return nil, storeErr("headers", title, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return toStrings(resp.Values[0]), nil
}

func (g *GoogleStore) Clear(ctx context.Context, title string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, a1(title), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return storeErr("clear", title, err)
}

func (g *GoogleStore) SetHeaders(ctx context.Context, title string, headers []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(headers)}}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, a1(title)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return storeErr("set headers", title, err)
}

func (g *GoogleStore) Append(ctx context.Context, title string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = toInterfaces(r)
	}
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, a1(title)+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return storeErr("append", title, err)
}

func (g *GoogleStore) Rows(ctx context.Context, title string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, a1(title)).Context(ctx).Do()
	if err != nil {
		return nil, storeErr("rows", title, err)
	}
	if len(resp.Values) <= 1 {
		return nil, nil
	}
	width := len(resp.Values[0])
	out := make([][]string, 0, len(resp.Values)-1)
	for _, r := range resp.Values[1:] {
		out = append(out, pad(toStrings(r), width))
	}
	return out, nil
}

func (g *GoogleStore) UpdateCells(ctx context.Context, title string, row int, cells map[int]string) error {
	if len(cells) == 0 {
		return nil
	}
	cols := make([]int, 0, len(cells))
	for c := range cells {
		cols = append(cols, c)
	}
	sort.Ints(cols)

	// +2: one for the header row, one for 1-based rows
	sheetRow := row + 2
	data := make([]*sheets.ValueRange, 0, len(cols))
	for _, c := range cols {
		data = append(data, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", a1(title), columnName(c), sheetRow),
			Values: [][]interface{}{{cells[c]}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	return storeErr("update", title, err)
}
