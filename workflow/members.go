// ABOUTME: Per-member booking cancellation
// ABOUTME: Fetches history, keeps future live sessions, and cancels them three at a time
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/batch"
	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/momence"
)

// BookingAPI is the part of the Momence client the member processor uses.
type BookingAPI interface {
	FetchHistory(ctx context.Context, memberID int64) ([]models.Booking, error)
	CancelBooking(ctx context.Context, memberID int64, booking models.Booking) momence.Attempt
}

// skipBooking reports whether a history item is out of scope for cancellation.
func skipBooking(b models.Booking, today time.Time) (bool, string) {
	if b.Type != models.BookingTypeSession {
		return true, "not a session"
	}
	if b.StartsAt == nil {
		return true, "missing start time"
	}
	if b.StartsAt.Before(today) {
		return true, "in the past"
	}
	if b.DeletedAt != nil {
		return true, "deleted"
	}
	if b.IsVoided {
		return true, "voided"
	}
	return false, ""
}

// FutureBookings keeps live session bookings starting on or after today, in
// their original order, and counts why the rest were dropped.
func FutureBookings(bookings []models.Booking, today time.Time) ([]models.Booking, map[string]int) {
	var keep []models.Booking
	skipped := make(map[string]int)
	for _, b := range bookings {
		if skip, reason := skipBooking(b, today); skip {
			skipped[reason]++
			continue
		}
		keep = append(keep, b)
	}
	return keep, skipped
}

// MemberProcessor cancels one member's future bookings.
type MemberProcessor struct {
	api    BookingAPI
	batch  batch.Options
	now    func() time.Time
	logger *log.Logger
}

// NewMemberProcessor returns a processor cancelling bookingBatch bookings at once.
func NewMemberProcessor(api BookingAPI, bookingBatch int, logger *log.Logger) *MemberProcessor {
	if logger == nil {
		logger = log.Default()
	}
	if bookingBatch < 1 {
		bookingBatch = 3
	}
	return &MemberProcessor{
		api: api,
		batch: batch.Options{
			Size: bookingBatch,
			OnPanic: func(i int, r any) any {
				logger.Error("booking cancellation recovered", "err", &batch.PanicError{Index: i, Value: r})
				return momence.Attempt{Err: "PANIC"}
			},
		},
		now:    time.Now,
		logger: logger,
	}
}

// Process never returns an error: history failures become an ERROR outcome
// and per-booking failures are listed in the outcome.
func (p *MemberProcessor) Process(ctx context.Context, member models.Member) models.CancellationOutcome {
	id := member.MemberID
	out := models.CancellationOutcome{MemberID: id, Successful: []int64{}, Failed: []string{}}

	history, err := p.api.FetchHistory(ctx, id)
	if err != nil {
		out.Status = models.StatusError
		var statusErr *momence.StatusError
		var decodeErr *models.DecodeError
		switch {
		case errors.As(err, &statusErr):
			out.Message = fmt.Sprintf("History fetch failed: %d", statusErr.Code)
		case errors.As(err, &decodeErr):
			out.Message = fmt.Sprintf("History decode failed: %s", decodeErr.Field)
		default:
			out.Message = fmt.Sprintf("Network error: %s", momence.ErrorCode(err))
		}
		p.logger.Warn("history fetch failed", "member", id, "err", err)
		return out
	}

	// TODO: decide with the studio whether "today" should follow the venue
	// timezone; time.Local drifts from Asia/Kolkata on hosts running in UTC.
	today := models.StartOfDay(p.now())
	future, skipped := FutureBookings(history, today)
	if len(skipped) > 0 {
		p.logger.Debug("skipped history items", "member", id, "reasons", skipped)
	}

	if len(future) == 0 {
		out.Status = models.StatusCompleted
		out.Message = "No future bookings"
		return out
	}

	attempts := batch.Run(ctx, future, p.batch, func(ctx context.Context, b models.Booking) momence.Attempt {
		return p.api.CancelBooking(ctx, id, b)
	})

	for i, a := range attempts {
		bookingID := future[i].BookingID
		if a.OK {
			out.Successful = append(out.Successful, bookingID)
			continue
		}
		reason := a.Err
		if reason == "" {
			reason = momence.CodeCancelled
		}
		out.Failed = append(out.Failed, fmt.Sprintf("%d(%s)", bookingID, reason))
	}
	out.Total = len(attempts)

	switch {
	case len(out.Failed) == 0:
		out.Status = models.StatusCompleted
	case len(out.Successful) > 0:
		out.Status = models.StatusPartial
	default:
		out.Status = models.StatusFailed
	}
	out.Message = fmt.Sprintf("%d/%d cancelled", len(out.Successful), out.Total)
	return out
}
