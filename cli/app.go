// ABOUTME: Shared wiring for CLI commands that execute the cancellation workflow
// ABOUTME: Builds clients from config, brackets each run in the ledger, prints summaries
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/config"
	"github.com/harperreed/latecancel/db"
	"github.com/harperreed/latecancel/momence"
	"github.com/harperreed/latecancel/sheets"
	"github.com/harperreed/latecancel/workflow"
)

// App carries what every command needs.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Out    io.Writer
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

var _ workflow.API = (*momence.Client)(nil)

// deps are the live collaborators of one run.
type deps struct {
	api    workflow.API
	store  sheets.Store
	ledger *db.Ledger
}

func (a *App) momenceConfig() momence.Config {
	m, r := a.Config.Momence, a.Config.Run
	return momence.Config{
		AccessToken:     m.AccessToken,
		Cookies:         m.Cookies,
		HostID:          m.HostID,
		APIBase:         m.APIBase,
		ReadonlyAPIBase: m.ReadonlyAPIBase,
		TargetTagIDs:    m.TargetTagIDs,
		LateCancelTagID: m.LateCancelTagID,
		PageSize:        m.PageSize,
		PollAttempts:    r.ReportPolls,
		PollInterval:    r.ReportPollEvery,
	}
}

func (a *App) workflowOptions(journal workflow.Journal) workflow.Options {
	r := a.Config.Run
	return workflow.Options{
		MemberSheet:      a.Config.Google.MemberSheet,
		LateCancelSheet:  a.Config.Google.LateCancelSheet,
		PropagationDelay: r.PropagationDelay,
		MemberBatchSize:  r.MemberBatchSize,
		MemberPause:      r.MemberPause,
		BookingBatchSize: r.BookingBatchSize,
		TagPause:         r.TagPause,
		Journal:          journal,
		Logger:           a.Logger,
	}
}

// preflight fails fast on missing credentials or an expired bearer token.
func (a *App) preflight() error {
	if err := a.Config.Validate(); err != nil {
		return err
	}
	return a.Config.CheckTokenExpiry(time.Now())
}

// connect builds the Momence client, the Sheets store, and opens the ledger.
func (a *App) connect(ctx context.Context) (deps, *sql.DB, error) {
	database, err := db.OpenDatabase(a.Config.Run.LedgerPath)
	if err != nil {
		return deps{}, nil, fmt.Errorf("failed to open run ledger: %w", err)
	}

	oauthCfg := sheets.NewOAuthConfig(a.Config.Google.ClientID, a.Config.Google.ClientSecret)
	svc, err := sheets.NewService(ctx, oauthCfg, a.Config.Google.RefreshToken)
	if err != nil {
		_ = database.Close()
		return deps{}, nil, err
	}

	return deps{
		api:    momence.NewClient(a.momenceConfig(), momence.WithLogger(a.Logger)),
		store:  sheets.NewGoogleStore(svc, a.Config.Google.SheetID, a.Logger),
		ledger: db.NewLedger(database),
	}, database, nil
}

// RunOnce executes a single ledger-guarded run against the live services.
func (a *App) RunOnce(ctx context.Context, force bool) (workflow.Summary, error) {
	if err := a.preflight(); err != nil {
		return workflow.Summary{}, err
	}
	d, database, err := a.connect(ctx)
	if err != nil {
		return workflow.Summary{}, err
	}
	defer database.Close()
	return a.runWith(ctx, d, force)
}

func (a *App) runWith(ctx context.Context, d deps, force bool) (workflow.Summary, error) {
	runID, err := d.ledger.Begin(ctx, a.Config.Run.StaleRunAfter, force)
	if err != nil {
		return workflow.Summary{}, err
	}
	a.Logger.Info("run started", "run", runID)

	journal := db.NewRunJournal(d.ledger, runID, a.Logger)
	summary, runErr := workflow.New(d.api, d.store, a.workflowOptions(journal)).Run(ctx)

	stage := workflow.StageSummary
	var stageErr *workflow.StageError
	if errors.As(runErr, &stageErr) {
		stage = stageErr.Stage
	}

	// Record the outcome even when ctx was cancelled mid-run
	if err := d.ledger.Finish(context.WithoutCancel(ctx), runID, string(stage), runErr, summary); err != nil {
		a.Logger.Error("failed to record run", "run", runID, "err", err)
	}
	return summary, runErr
}

// printSummary writes the human summary and, under GitHub Actions, workflow annotations.
func printSummary(w io.Writer, s workflow.Summary, github bool) {
	fmt.Fprintln(w)
	for i, line := range s.Lines() {
		glyph := "  →"
		if i == 0 {
			glyph = "✓"
		}
		fmt.Fprintf(w, "%s %s\n", glyph, line)
	}
	if github {
		for _, a := range s.Annotations() {
			fmt.Fprintln(w, a)
		}
	}
}
