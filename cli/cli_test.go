// ABOUTME: Tests for run wiring, the HTTP trigger, the daemon loop, and status rendering
// ABOUTME: Uses an in-memory ledger, the memory sheet store, and a stub Momence API
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harperreed/latecancel/config"
	"github.com/harperreed/latecancel/db"
	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/momence"
	"github.com/harperreed/latecancel/sheets"
	"github.com/harperreed/latecancel/workflow"
)

type stubAPI struct {
	members    []models.Member
	membersErr error
}

func (s *stubAPI) FetchMembers(ctx context.Context) ([]models.Member, error) {
	return s.members, s.membersErr
}

func (s *stubAPI) LateCancellations(ctx context.Context, now time.Time) ([]models.LateCancellationItem, []*models.DecodeError, error) {
	return nil, nil, nil
}

func (s *stubAPI) FetchHistory(ctx context.Context, memberID int64) ([]models.Booking, error) {
	return nil, nil
}

func (s *stubAPI) CancelBooking(ctx context.Context, memberID int64, b models.Booking) momence.Attempt {
	return momence.Attempt{OK: true}
}

func (s *stubAPI) AssignTag(ctx context.Context, memberID int64) models.TagAssignmentResult {
	return models.TagAssignmentResult{MemberID: memberID, Success: true}
}

func testApp() *App {
	cfg := config.Defaults()
	cfg.Run.PropagationDelay = time.Nanosecond
	cfg.Run.MemberPause = time.Nanosecond
	cfg.Run.TagPause = time.Nanosecond
	return &App{Config: cfg, Logger: log.New(io.Discard), Out: &bytes.Buffer{}}
}

func testDeps(t *testing.T, api workflow.API) deps {
	t.Helper()
	database, err := db.OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return deps{api: api, store: sheets.NewMemoryStore(), ledger: db.NewLedger(database)}
}

func TestRunWithRecordsLedger(t *testing.T) {
	a := testApp()
	d := testDeps(t, &stubAPI{members: []models.Member{{MemberID: 1}, {MemberID: 2}}})

	summary, err := a.runWith(context.Background(), d, false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Members)
	assert.Equal(t, 2, summary.Completed)

	runs, err := d.ledger.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.StatusSucceeded, runs[0].Status)
	assert.Equal(t, string(workflow.StageSummary), runs[0].Stage)
	assert.Contains(t, runs[0].SummaryJSON, `"members":2`)

	entries, err := d.ledger.Entries(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunWithRecordsFailedStage(t *testing.T) {
	a := testApp()
	d := testDeps(t, &stubAPI{membersErr: errors.New("connection refused")})

	_, err := a.runWith(context.Background(), d, false)
	require.Error(t, err)

	runs, err := d.ledger.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.StatusFailed, runs[0].Status)
	assert.Equal(t, string(workflow.StageFetchTargetMembers), runs[0].Stage)
	assert.Contains(t, runs[0].ErrorMessage, "connection refused")
}

func TestRunWithRefusesOverlap(t *testing.T) {
	a := testApp()
	d := testDeps(t, &stubAPI{})

	_, err := d.ledger.Begin(context.Background(), time.Hour, false)
	require.NoError(t, err)

	_, err = a.runWith(context.Background(), d, false)
	assert.ErrorIs(t, err, db.ErrRunInProgress)

	_, err = a.runWith(context.Background(), d, true)
	assert.NoError(t, err)
}

func TestMomenceConfigCarriesReportPolling(t *testing.T) {
	a := testApp()
	a.Config.Run.ReportPolls = 4
	a.Config.Run.ReportPollEvery = 7 * time.Second

	mc := a.momenceConfig()
	assert.Equal(t, 4, mc.PollAttempts)
	assert.Equal(t, 7*time.Second, mc.PollInterval)
	assert.Equal(t, a.Config.Momence.HostID, mc.HostID)
}

func TestPreflightReportsMissingConfig(t *testing.T) {
	a := testApp()
	_, err := a.RunOnce(context.Background(), false)
	var missing *config.MissingError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Keys, "MOMENCE_ACCESS_TOKEN")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	s := workflow.Summary{Duration: 2 * time.Second, Members: 1, Errors: 1}

	printSummary(&buf, s, false)
	assert.Contains(t, buf.String(), "✓ Process completed in 2.0s")
	assert.NotContains(t, buf.String(), "::notice")

	buf.Reset()
	printSummary(&buf, s, true)
	assert.Contains(t, buf.String(), "::notice title=Cancellation Complete::")
	assert.Contains(t, buf.String(), "::warning title=Processing Errors::1 members encountered errors")
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) runResponse {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServeRunSuccess(t *testing.T) {
	mux := newServeMux(func(ctx context.Context) (workflow.Summary, error) {
		return workflow.Summary{Members: 3, BookingsCancelled: 4}, nil
	}, log.New(io.Discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, platform, resp.Platform)
	assert.Equal(t, "Processed 3 members, cancelled 4 bookings", resp.Message)
	assert.NotEmpty(t, resp.Timestamp)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 4, resp.Summary.BookingsCancelled)
}

func TestServeRunFailure(t *testing.T) {
	cause := fmt.Errorf("%w: poll exhausted", momence.ErrReportTimeout)
	mux := newServeMux(func(ctx context.Context) (workflow.Summary, error) {
		return workflow.Summary{}, &workflow.StageError{Stage: workflow.StageFetchLateCancellations, Err: cause}
	}, log.New(io.Discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "FETCH_LATE_CANCELLATIONS", resp.Stage)
	assert.Contains(t, resp.Error, "did not complete")
	assert.Len(t, resp.Stack, 3)
}

func TestServeRejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mux := newServeMux(func(ctx context.Context) (workflow.Summary, error) {
		close(started)
		<-release
		return workflow.Summary{}, nil
	}, log.New(io.Discard))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
		done <- rec.Code
	}()
	<-started

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "a run is already in progress", decodeResponse(t, rec).Error)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestServeAuxiliaryEndpoints(t *testing.T) {
	mux := newServeMux(func(ctx context.Context) (workflow.Summary, error) {
		return workflow.Summary{}, nil
	}, log.New(io.Discard))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "latecancel_")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidateInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		ok       bool
	}{
		{15 * time.Minute, true},
		{5 * time.Minute, true},
		{24 * time.Hour, true},
		{4 * time.Minute, false},
		{0, false},
	}
	for _, tt := range tests {
		t.Run(tt.interval.String(), func(t *testing.T) {
			err := validateInterval(tt.interval)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDaemonLoopRunsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		daemonLoop(ctx, 20*time.Millisecond, func(ctx context.Context) (workflow.Summary, error) {
			if runs.Add(1) == 3 {
				cancel()
			}
			return workflow.Summary{}, nil
		}, func(workflow.Summary, error) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon loop did not stop after cancel")
	}
	assert.Equal(t, int32(3), runs.Load())
}

func TestOAuthCallback(t *testing.T) {
	tokens := make(chan *oauth2.Token, 1)
	errs := make(chan error, 1)
	h := oauthCallback(context.Background(), &oauth2.Config{}, "expected", tokens, errs)

	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{name: "state mismatch", query: "state=other&code=abc"},
		{name: "denied", query: "state=expected&error=access_denied", wantErr: true},
		{name: "missing code", query: "state=expected", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?"+tt.query, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			if tt.wantErr {
				assert.Error(t, <-errs)
			} else {
				assert.Empty(t, errs)
			}
			assert.Empty(t, tokens)
		})
	}
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago      time.Duration
		expected string
	}{
		{30 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{3 * time.Hour, "3 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{5 * 24 * time.Hour, "5 days ago"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeSince(now.Add(-tt.ago), now))
		})
	}
}

func TestRenderRuns(t *testing.T) {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-9 * time.Minute)

	out := renderRuns(nil, now)
	assert.Contains(t, out, "No runs recorded yet")

	out = renderRuns([]db.Run{
		{ID: "01RUNA", StartedAt: now.Add(-10 * time.Minute), FinishedAt: &finished, Status: db.StatusSucceeded,
			SummaryJSON: `{"members":4,"bookingsCancelled":6,"newLateCancellations":2,"tagsAssigned":1}`},
		{ID: "01RUNB", StartedAt: now.Add(-2 * time.Hour), Status: db.StatusFailed, Stage: "PERSIST_RESULTS", ErrorMessage: "quota exceeded"},
	}, now)

	lines := strings.Split(out, "\n")
	assert.Contains(t, out, "10 minutes ago (took 1m0s)")
	assert.Contains(t, out, "4 members, 6 bookings cancelled, 2 new late cancellations, 1 tagged")
	assert.Contains(t, out, "quota exceeded at PERSIST_RESULTS")
	assert.Greater(t, len(lines), 4)
}
