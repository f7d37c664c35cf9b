// ABOUTME: Data models for members, bookings, and late cancellation records
// ABOUTME: Defines outcome statuses, tag actions, and the typed report row shapes
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Member is a customer carrying one of the targeting tags.
type Member struct {
	MemberID    int64      `json:"memberId"`
	Email       string     `json:"email,omitempty"`
	FirstName   string     `json:"firstName,omitempty"`
	LastName    string     `json:"lastName,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	FirstSeen   *time.Time `json:"firstSeen,omitempty"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

// Booking is one entry of a member's booking history.
type Booking struct {
	BookingID int64      `json:"bookingId"`
	SessionID int64      `json:"sessionId"`
	Type      string     `json:"type"`
	StartsAt  *time.Time `json:"startsAt,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	IsVoided  bool       `json:"isVoided"`
}

// BookingTypeSession marks class bookings in the history feed.
const BookingTypeSession = "session"

// Outcome status constants.
const (
	StatusCompleted    = "COMPLETED"
	StatusPartial      = "PARTIAL"
	StatusFailed       = "FAILED"
	StatusError        = "ERROR"
	StatusNotProcessed = "NOT_PROCESSED"
)

// Member sheet actualAction values.
const (
	ActionAllCancelled       = "ALL_CANCELLED"
	ActionPartialCancelled   = "PARTIAL_CANCELLED"
	ActionCancellationFailed = "CANCELLATION_FAILED"
	ActionErrorOccurred      = "ERROR_OCCURRED"
)

// CancellationOutcome is the per-member result of one run.
type CancellationOutcome struct {
	MemberID   int64    `json:"memberId"`
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	Successful []int64  `json:"successful"`
	Failed     []string `json:"failed"`
	Total      int      `json:"total"`
}

// NotProcessedOutcome is the placeholder written for members without a result.
func NotProcessedOutcome(memberID int64) CancellationOutcome {
	return CancellationOutcome{
		MemberID: memberID,
		Status:   StatusNotProcessed,
		Message:  "Skipped",
	}
}

// ProcessingReason describes the booking counts behind the outcome.
func (o CancellationOutcome) ProcessingReason() string {
	if o.Total == 0 {
		return "No future bookings found"
	}
	return fmt.Sprintf("%d future bookings found - %d successful, %d failed", o.Total, len(o.Successful), len(o.Failed))
}

// ActualAction maps the outcome status to the member sheet action column.
func (o CancellationOutcome) ActualAction() string {
	switch o.Status {
	case StatusCompleted:
		return ActionAllCancelled
	case StatusPartial:
		return ActionPartialCancelled
	case StatusFailed:
		return ActionCancellationFailed
	default:
		return ActionErrorOccurred
	}
}

// SuccessfulIDs joins the cancelled booking ids for the sheet.
func (o CancellationOutcome) SuccessfulIDs() string {
	parts := make([]string, len(o.Successful))
	for i, id := range o.Successful {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Late cancellation action and status values.
const (
	ActionAddTag = "Add Tag"

	ActualPending     = "PENDING"
	ActualSkipped     = "SKIPPED"
	ActualTagAssigned = "TAG_ASSIGNED"
	ActualTagFailed   = "TAG_FAILED"

	TagStatusSkipped = "Skipped - Not Unlimited Membership"
	TagStatusSuccess = "Tagged Successfully"
)

// TagFailedStatus renders the status cell for a failed tag assignment.
func TagFailedStatus(reason string) string {
	return "Tag Failed: " + reason
}

// LateCancellationItem is one row of the late cancellations report.
type LateCancellationItem struct {
	MemberID       int64
	CustomerName   string
	CustomerEmail  string
	CancelledEvent string
	CancelledDate  time.Time
	SessionDate    time.Time
	Paid           Amount
	PaymentMethod  string
	MembershipName string
	HomeLocation   string
	ChargedPenalty Amount
}

// Key returns the composite identity used for deduplication.
func (i LateCancellationItem) Key() string {
	return EventKey(i.MemberID, FormatVenueTime(i.CancelledDate), FormatVenueTime(i.SessionDate))
}

// LateCancellationEvent is a persisted row of the late cancellation log.
type LateCancellationEvent struct {
	MemberID         int64
	CustomerName     string
	CustomerEmail    string
	CancelledEvent   string
	CancelledDate    string
	SessionDate      string
	Paid             Amount
	PaymentMethod    string
	MembershipName   string
	HomeLocation     string
	PenaltyAmount    Amount
	OccurrenceCount  int
	Action           string
	Status           string
	ProcessingReason string
	ActualAction     string
}

// Key returns the composite identity used for deduplication.
func (e LateCancellationEvent) Key() string {
	return EventKey(e.MemberID, e.CancelledDate, e.SessionDate)
}

// EventKey builds the member/cancelled/session composite key.
func EventKey(memberID int64, cancelledDate, sessionDate string) string {
	return fmt.Sprintf("%d_%s_%s", memberID, cancelledDate, sessionDate)
}

// TagAssignmentResult is the outcome of assigning the late cancellation tag.
type TagAssignmentResult struct {
	MemberID int64  `json:"memberId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Amount is a money value that the report sends as a number, a string, or null.
type Amount string

// UnmarshalJSON accepts numbers, strings, and null (which becomes "0").
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = "0"
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			s = "0"
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// String returns the amount, defaulting to "0".
func (a Amount) String() string {
	if a == "" {
		return "0"
	}
	return string(a)
}
