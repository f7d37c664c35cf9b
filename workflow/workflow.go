// ABOUTME: Sequences one complete run from late cancellation report to member table
// ABOUTME: Any stage failure aborts the run with a StageError naming the stage
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/batch"
	"github.com/harperreed/latecancel/metrics"
	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/sheets"
	"github.com/harperreed/latecancel/tagging"
)

// Stage names a step of a run.
type Stage string

const (
	StageInit                   Stage = "INIT"
	StageFetchLateCancellations Stage = "FETCH_LATE_CANCELLATIONS"
	StageDedupAndTag            Stage = "DEDUP_AND_TAG"
	StagePropagationDelay       Stage = "PROPAGATION_DELAY"
	StageFetchTargetMembers     Stage = "FETCH_TARGET_MEMBERS"
	StageCancelBatched          Stage = "CANCEL_BATCHED"
	StagePersistResults         Stage = "PERSIST_RESULTS"
	StageSummary                Stage = "SUMMARY"
)

// StageError is a fatal failure inside a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Journal receives per-entity audit entries. Log is called from concurrent
// workers and has no way to fail the run.
type Journal interface {
	Log(entityType string, entityID int64, outcome, detail string)
}

type nopJournal struct{}

func (nopJournal) Log(string, int64, string, string) {}

// API is everything a run needs from Momence.
type API interface {
	BookingAPI
	TagAssigner
	FetchMembers(ctx context.Context) ([]models.Member, error)
	LateCancellations(ctx context.Context, now time.Time) ([]models.LateCancellationItem, []*models.DecodeError, error)
}

// Options tune a Workflow. Zero values take production defaults.
type Options struct {
	MemberSheet      string
	LateCancelSheet  string
	PropagationDelay time.Duration
	MemberBatchSize  int
	MemberPause      time.Duration
	BookingBatchSize int
	TagPause         time.Duration
	Tagger           *tagging.Tagger
	Journal          Journal
	Logger           *log.Logger
	Now              func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MemberSheet == "" {
		o.MemberSheet = MemberSheetTitle
	}
	if o.LateCancelSheet == "" {
		o.LateCancelSheet = LateCancelSheetTitle
	}
	if o.PropagationDelay == 0 {
		o.PropagationDelay = 5 * time.Second
	}
	if o.MemberBatchSize <= 0 {
		o.MemberBatchSize = 8
	}
	if o.MemberPause == 0 {
		o.MemberPause = 500 * time.Millisecond
	}
	if o.BookingBatchSize <= 0 {
		o.BookingBatchSize = 3
	}
	if o.TagPause == 0 {
		o.TagPause = 200 * time.Millisecond
	}
	if o.Tagger == nil {
		o.Tagger = tagging.NewTagger()
	}
	if o.Journal == nil {
		o.Journal = nopJournal{}
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Workflow runs the cancellation and tagging job.
type Workflow struct {
	api         API
	lateLog     *sheets.AppendOnlyLog
	memberTable *sheets.RebuildTable
	processor   *MemberProcessor
	reconciler  *LateCancellationReconciler
	writer      *OutcomeWriter
	opts        Options
	logger      *log.Logger
}

// New wires a Workflow over api and store.
func New(api API, store sheets.Store, opts Options) *Workflow {
	opts.applyDefaults()
	lateLog := sheets.NewAppendOnlyLog(store, opts.LateCancelSheet, LateCancelColumns)
	memberTable := sheets.NewRebuildTable(store, opts.MemberSheet, MemberColumns)

	processor := NewMemberProcessor(api, opts.BookingBatchSize, opts.Logger)
	processor.now = opts.Now
	writer := NewOutcomeWriter(memberTable, opts.Logger)
	writer.now = opts.Now

	return &Workflow{
		api:         api,
		lateLog:     lateLog,
		memberTable: memberTable,
		processor:   processor,
		reconciler:  NewLateCancellationReconciler(lateLog, opts.Tagger, api, opts.TagPause, opts.Journal, opts.Logger),
		writer:      writer,
		opts:        opts,
		logger:      opts.Logger,
	}
}

// Run executes every stage once. On failure the returned Summary covers the
// stages that completed.
func (w *Workflow) Run(ctx context.Context) (Summary, error) {
	started := w.opts.Now()
	s := Summary{StartedAt: started}

	enter := func(st Stage) {
		s.Stages = append(s.Stages, st)
		w.logger.Info("stage", "stage", string(st))
	}
	fail := func(st Stage, err error) (Summary, error) {
		s.Duration = w.opts.Now().Sub(started)
		metrics.RecordRun(false, s.Duration, w.opts.Now())
		w.logger.Error("run failed", "stage", string(st), "after", s.Duration.Round(100*time.Millisecond), "err", err)
		return s, &StageError{Stage: st, Err: err}
	}

	enter(StageInit)
	for _, prep := range []interface {
		Prepare(context.Context) ([]string, error)
		Title() string
	}{w.lateLog, w.memberTable} {
		added, err := prep.Prepare(ctx)
		if err != nil {
			return fail(StageInit, err)
		}
		if len(added) > 0 {
			w.logger.Info("added missing columns", "sheet", prep.Title(), "columns", added)
		}
	}

	enter(StageFetchLateCancellations)
	items, rejects, err := w.api.LateCancellations(ctx, w.opts.Now())
	if err != nil {
		return fail(StageFetchLateCancellations, err)
	}
	for _, rej := range rejects {
		w.logger.Warn("skipping malformed report row", "err", rej)
	}
	s.LateCancellations = len(items)
	s.Rejected = len(rejects)

	enter(StageDedupAndTag)
	if len(items) == 0 {
		w.logger.Info("no late cancellations found")
	}
	// Runs on an empty report too so rows left pending by an earlier run resolve.
	res, err := w.reconciler.Reconcile(ctx, items)
	if err != nil {
		return fail(StageDedupAndTag, err)
	}
	s.NewLateCancellations = res.Inserted
	s.Duplicates = res.Duplicates
	for _, tr := range res.TagResults {
		if tr.Success {
			s.TagsAssigned++
		} else {
			s.TagsFailed++
		}
	}
	metrics.RecordLateCancellations(s.NewLateCancellations, s.Duplicates, s.Rejected)

	enter(StagePropagationDelay)
	if w.opts.PropagationDelay > 0 {
		select {
		case <-time.After(w.opts.PropagationDelay):
		case <-ctx.Done():
			return fail(StagePropagationDelay, ctx.Err())
		}
	}

	enter(StageFetchTargetMembers)
	members, err := w.api.FetchMembers(ctx)
	if err != nil {
		return fail(StageFetchTargetMembers, err)
	}
	s.Members = len(members)

	if len(members) > 0 {
		enter(StageCancelBatched)
		outcomes := batch.Run(ctx, members, batch.Options{
			Size:  w.opts.MemberBatchSize,
			Pause: w.opts.MemberPause,
			OnChunk: func(chunk, total, size int) {
				w.logger.Info("member batch", "batch", chunk, "of", total, "members", size)
			},
		}, w.processMember)
		if err := ctx.Err(); err != nil {
			return fail(StageCancelBatched, err)
		}

		enter(StagePersistResults)
		if _, err := w.writer.Rebuild(ctx, members, outcomes); err != nil {
			return fail(StagePersistResults, err)
		}
		s.tally(outcomes)
	} else {
		w.logger.Info("no members found for cancellation processing")
	}

	enter(StageSummary)
	s.Duration = w.opts.Now().Sub(started)
	metrics.RecordRun(true, s.Duration, w.opts.Now())
	return s, nil
}

// processMember wraps Process so a panic becomes an ERROR outcome for that member.
func (w *Workflow) processMember(ctx context.Context, m models.Member) (out models.CancellationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("member processing panicked", "member", m.MemberID, "panic", r)
			out = models.CancellationOutcome{
				MemberID:   m.MemberID,
				Status:     models.StatusError,
				Message:    fmt.Sprintf("Internal error: %v", r),
				Successful: []int64{},
				Failed:     []string{},
			}
		}
		metrics.RecordMemberOutcome(out.Status, len(out.Successful))
		w.opts.Journal.Log("member", m.MemberID, out.Status, out.Message)
	}()
	return w.processor.Process(ctx, m)
}
