// ABOUTME: Rewrites the member outcome table from the latest run
// ABOUTME: Every targeted member gets a row, with a placeholder when no outcome exists
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/sheets"
)

// OutcomeWriter owns the member outcome table.
type OutcomeWriter struct {
	table  *sheets.RebuildTable
	now    func() time.Time
	logger *log.Logger
}

// NewOutcomeWriter returns a writer for table.
func NewOutcomeWriter(table *sheets.RebuildTable, logger *log.Logger) *OutcomeWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &OutcomeWriter{table: table, now: time.Now, logger: logger}
}

// Rebuild replaces the table with one row per member and returns the row count.
func (w *OutcomeWriter) Rebuild(ctx context.Context, members []models.Member, outcomes []models.CancellationOutcome) (int, error) {
	if added, err := w.table.MigrateSchema(ctx); err != nil {
		return 0, fmt.Errorf("migrate member table: %w", err)
	} else if len(added) > 0 {
		w.logger.Info("added member table columns", "columns", added)
	}

	byMember := make(map[int64]models.CancellationOutcome, len(outcomes))
	for _, o := range outcomes {
		if o.MemberID != 0 {
			byMember[o.MemberID] = o
		}
	}

	processedAt := models.FormatVenueTime(w.now())
	rows := make([]sheets.Row, 0, len(members))
	for _, m := range members {
		o, ok := byMember[m.MemberID]
		if !ok {
			o = models.NotProcessedOutcome(m.MemberID)
		}
		rows = append(rows, rowFromOutcome(m, o, processedAt))
	}

	if err := w.table.Replace(ctx, rows); err != nil {
		return 0, fmt.Errorf("rewrite member table: %w", err)
	}
	w.logger.Info("member table updated", "rows", len(rows))
	return len(rows), nil
}
