// ABOUTME: Reconciles late cancellation report rows into the append-only log
// ABOUTME: Dedupes by composite key, applies the tagging rule, assigns tags, and resolves statuses
package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/batch"
	"github.com/harperreed/latecancel/metrics"
	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/sheets"
	"github.com/harperreed/latecancel/tagging"
)

// TagAssigner assigns the late cancellation tag to a member.
type TagAssigner interface {
	AssignTag(ctx context.Context, memberID int64) models.TagAssignmentResult
}

// ReconcileResult summarises one reconciliation.
type ReconcileResult struct {
	Inserted   int
	Duplicates int
	ToTag      []int64
	TagResults []models.TagAssignmentResult
	Resolved   int
}

// LateCancellationReconciler owns the late cancellation log.
type LateCancellationReconciler struct {
	log     *sheets.AppendOnlyLog
	tagger  *tagging.Tagger
	tags    TagAssigner
	pacing  batch.Options
	journal Journal
	logger  *log.Logger
}

// NewLateCancellationReconciler wires the reconciler. Tags are assigned one at
// a time with tagPause between them.
func NewLateCancellationReconciler(lateLog *sheets.AppendOnlyLog, tagger *tagging.Tagger, tags TagAssigner, tagPause time.Duration, journal Journal, logger *log.Logger) *LateCancellationReconciler {
	if logger == nil {
		logger = log.Default()
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &LateCancellationReconciler{
		log:    lateLog,
		tagger: tagger,
		tags:   tags,
		pacing: batch.Options{
			Size:  1,
			Pause: tagPause,
			OnPanic: func(i int, r any) any {
				logger.Error("tag assignment recovered", "err", &batch.PanicError{Index: i, Value: r})
				return models.TagAssignmentResult{Error: "PANIC"}
			},
		},
		journal: journal,
		logger:  logger,
	}
}

// Reconcile appends the new rows of items and resolves pending tag rows.
func (r *LateCancellationReconciler) Reconcile(ctx context.Context, items []models.LateCancellationItem) (ReconcileResult, error) {
	var res ReconcileResult

	existing, err := r.log.List(ctx)
	if err != nil {
		return res, fmt.Errorf("load late cancellations: %w", err)
	}
	events := make([]models.LateCancellationEvent, len(existing))
	for i, row := range existing {
		events[i] = eventFromRow(row)
	}
	idx := tagging.NewEventIndex(events, r.tagger.Cutoff)
	r.logger.Info("loaded late cancellation log", "rows", len(existing), "members", idx.Members())

	var newRows []sheets.Row
	queued := make(map[int64]bool)
	for _, item := range items {
		if idx.Seen(item.Key()) {
			res.Duplicates++
			continue
		}

		ev := eventFromItem(item)
		history := idx.History(ev.MemberID)
		decision := r.tagger.Evaluate(history, tagging.FromEvent(ev))

		ev.OccurrenceCount = len(history) + 1
		ev.ProcessingReason = decision.Reason
		ev.ActualAction = models.ActualPending
		if decision.ShouldTag {
			ev.Action = models.ActionAddTag
			if !queued[ev.MemberID] {
				queued[ev.MemberID] = true
				res.ToTag = append(res.ToTag, ev.MemberID)
			}
		}

		idx.Add(ev)
		newRows = append(newRows, rowFromEvent(ev))
		r.journal.Log("late_cancellation", ev.MemberID, "inserted", decision.Reason)
	}

	r.logger.Info("late cancellations reconciled", "new", len(newRows), "duplicates", res.Duplicates, "to_tag", len(res.ToTag))

	if len(newRows) > 0 {
		if err := r.log.AppendMany(ctx, newRows); err != nil {
			return res, fmt.Errorf("append late cancellations: %w", err)
		}
		res.Inserted = len(newRows)
	}

	if len(res.ToTag) > 0 {
		res.TagResults = batch.Run(ctx, res.ToTag, r.pacing, r.tags.AssignTag)
		for i := range res.TagResults {
			if res.TagResults[i].MemberID == 0 {
				res.TagResults[i].MemberID = res.ToTag[i]
				if res.TagResults[i].Error == "" && !res.TagResults[i].Success {
					res.TagResults[i].Error = "CANCELLED"
				}
			}
			tr := res.TagResults[i]
			metrics.RecordTagAssignment(tr.Success)
			outcome := "tagged"
			if !tr.Success {
				outcome = "tag_failed"
			}
			r.journal.Log("tag", tr.MemberID, outcome, tr.Error)
		}
	}

	resolved, err := r.resolvePending(ctx, res.TagResults)
	if err != nil {
		return res, err
	}
	res.Resolved = resolved
	return res, nil
}

// resolvePending fills status and actualAction on "Add Tag" rows still
// missing a status.
func (r *LateCancellationReconciler) resolvePending(ctx context.Context, results []models.TagAssignmentResult) (int, error) {
	byMember := make(map[int64]models.TagAssignmentResult, len(results))
	for _, tr := range results {
		byMember[tr.MemberID] = tr
	}

	rows, err := r.log.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("reload late cancellations: %w", err)
	}

	resolved := 0
	for i, row := range rows {
		if row["action"] != models.ActionAddTag || row["status"] != "" {
			continue
		}

		var update sheets.Row
		if !r.tagger.IsUnlimited(row["membershipName"]) {
			update = sheets.Row{"status": models.TagStatusSkipped, "actualAction": models.ActualSkipped}
		} else {
			id, _ := strconv.ParseInt(row["memberId"], 10, 64)
			tr, ok := byMember[id]
			if !ok {
				continue
			}
			if tr.Success {
				update = sheets.Row{"status": models.TagStatusSuccess, "actualAction": models.ActualTagAssigned}
			} else {
				update = sheets.Row{"status": models.TagFailedStatus(tr.Error), "actualAction": models.ActualTagFailed}
			}
		}

		if err := r.log.UpdateRow(ctx, i, update); err != nil {
			return resolved, fmt.Errorf("resolve tag status: %w", err)
		}
		resolved++
	}
	return resolved, nil
}
