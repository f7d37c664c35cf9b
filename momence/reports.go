// ABOUTME: Late cancellation report submission and polling
// ABOUTME: Report runs are async; Poll waits until the run completes or items appear
package momence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/latecancel/models"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// ReportRequest is the late cancellations report query.
type ReportRequest struct {
	TimeZone                  string `json:"timeZone"`
	GroupRecurring            bool   `json:"groupRecurring"`
	ComputedSaleValue         bool   `json:"computedSaleValue"`
	IncludeVatInRevenue       bool   `json:"includeVatInRevenue"`
	UseBookedEntityDateRange  bool   `json:"useBookedEntityDateRange"`
	ExcludeMembershipRenews   bool   `json:"excludeMembershipRenews"`
	Day                       string `json:"day"`
	MoneyCreditSalesFilter    string `json:"moneyCreditSalesFilter"`
	HideVoided                bool   `json:"hideVoided"`
	ExcludeInactiveMembers    bool   `json:"excludeInactiveMembers"`
	IncludeRefunds            bool   `json:"includeRefunds"`
	ShowOnlySpotfillerRevenue bool   `json:"showOnlySpotfillerRevenue"`
	StartDate                 string `json:"startDate"`
	EndDate                   string `json:"endDate"`
	StartDate2                string `json:"startDate2"`
	EndDate2                  string `json:"endDate2"`
	DatePreset                int    `json:"datePreset"`
	DatePreset2               int    `json:"datePreset2"`
}

// NewReportRequest covers cancellations from the tagging cutoff to the end of
// the venue day containing now.
func NewReportRequest(now time.Time) ReportRequest {
	start := models.TaggingCutoff.UTC().Format(isoMillis)
	end := models.EndOfVenueDay(now).UTC().Format(isoMillis)
	day := models.StartOfDay(now.In(models.VenueZone)).UTC().Format(isoMillis)
	return ReportRequest{
		TimeZone:               "Asia/Kolkata",
		ComputedSaleValue:      true,
		IncludeVatInRevenue:    true,
		Day:                    day,
		MoneyCreditSalesFilter: "filterOutSalesPaidByMoneyCredits",
		StartDate:              start,
		EndDate:                end,
		StartDate2:             start,
		EndDate2:               end,
		DatePreset:             -1,
		DatePreset2:            4,
	}
}

// ReportRun is one poll response for an async report.
type ReportRun struct {
	Status     string `json:"status"`
	ReportData *struct {
		Items []json.RawMessage `json:"items"`
	} `json:"reportData"`
}

// Ready reports whether the run completed or already carries items.
func (r ReportRun) Ready() bool {
	return r.Status == "completed" || (r.ReportData != nil && r.ReportData.Items != nil)
}

// Items returns the raw report rows, empty when none were produced.
func (r ReportRun) Items() []json.RawMessage {
	if r.ReportData == nil {
		return nil
	}
	return r.ReportData.Items
}

// SubmitReport starts an async late cancellations report and returns its run id.
func (c *Client) SubmitReport(ctx context.Context, req ReportRequest) (string, error) {
	u := c.hostURL(c.cfg.APIBase, "/reports/late-cancellations/async")
	status, body, err := c.send(ctx, http.MethodPost, u, req, BulkTimeout)
	if err != nil {
		return "", fmt.Errorf("submit report: %s: %w", ErrorCode(err), err)
	}
	if status >= 400 {
		return "", newStatusError("submit report", status, body)
	}

	var resp struct {
		ReportRunID json.RawMessage `json:"reportRunId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &models.DecodeError{Entity: "report run", Index: -1, Field: "reportRunId", Reason: err.Error()}
	}
	id := rawID(resp.ReportRunID)
	if id == "" {
		return "", &models.DecodeError{Entity: "report run", Index: -1, Field: "reportRunId", Reason: "missing"}
	}
	return id, nil
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return ""
		}
		return unq
	}
	return s
}

// FetchReportRun reads the current state of a report run.
func (c *Client) FetchReportRun(ctx context.Context, runID string) (ReportRun, error) {
	u := c.hostURL(c.cfg.APIBase, "/reports/late-cancellations/report-runs/%s", runID)
	status, body, err := c.send(ctx, http.MethodGet, u, nil, BulkTimeout)
	if err != nil {
		return ReportRun{}, fmt.Errorf("fetch report run: %s: %w", ErrorCode(err), err)
	}
	if status >= 400 {
		return ReportRun{}, newStatusError("fetch report run", status, body)
	}
	var run ReportRun
	if err := json.Unmarshal(body, &run); err != nil {
		return ReportRun{}, &models.DecodeError{Entity: "report run", Index: -1, Field: "object", Reason: err.Error()}
	}
	return run, nil
}

// LateCancellations submits the report, waits for it, and decodes the rows.
// Rows that fail to decode come back separately.
func (c *Client) LateCancellations(ctx context.Context, now time.Time) ([]models.LateCancellationItem, []*models.DecodeError, error) {
	runID, err := c.SubmitReport(ctx, NewReportRequest(now))
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info("report submitted", "reportRunId", runID)

	opts := PollOptions{
		MaxAttempts: c.cfg.PollAttempts,
		Interval:    c.cfg.PollInterval,
		OnWait: func(attempt int, err error) {
			if err != nil {
				c.logger.Warn("report poll failed", "attempt", attempt, "of", c.cfg.PollAttempts, "err", err)
				return
			}
			c.logger.Info("report still processing", "attempt", attempt, "of", c.cfg.PollAttempts)
		},
	}
	run, err := Poll(ctx, opts, func(ctx context.Context) (ReportRun, error) {
		return c.FetchReportRun(ctx, runID)
	}, ReportRun.Ready)
	if errors.Is(err, ErrPollExhausted) {
		return nil, nil, fmt.Errorf("%w: %w", ErrReportTimeout, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("poll report: %w", err)
	}

	items, rejects := models.DecodeLateCancellations(run.Items())
	c.logger.Info("late cancellations fetched", "count", len(items), "rejected", len(rejects))
	return items, rejects, nil
}
