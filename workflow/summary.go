// ABOUTME: Run summary counts and their human and CI renderings
// ABOUTME: Serialised into the run ledger and printed by the CLI
package workflow

import (
	"fmt"
	"time"

	"github.com/harperreed/latecancel/models"
)

// Summary is the result of one run.
type Summary struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Stages    []Stage       `json:"stages"`

	LateCancellations    int `json:"lateCancellations"`
	NewLateCancellations int `json:"newLateCancellations"`
	Duplicates           int `json:"duplicates"`
	Rejected             int `json:"rejected"`
	TagsAssigned         int `json:"tagsAssigned"`
	TagsFailed           int `json:"tagsFailed"`

	Members           int `json:"members"`
	Completed         int `json:"completed"`
	Partial           int `json:"partial"`
	Failed            int `json:"failed"`
	Errors            int `json:"errors"`
	NotProcessed      int `json:"notProcessed"`
	BookingsCancelled int `json:"bookingsCancelled"`
}

func (s *Summary) tally(outcomes []models.CancellationOutcome) {
	for _, o := range outcomes {
		switch o.Status {
		case models.StatusCompleted:
			s.Completed++
		case models.StatusPartial:
			s.Partial++
		case models.StatusFailed:
			s.Failed++
		case models.StatusError:
			s.Errors++
		default:
			s.NotProcessed++
		}
		s.BookingsCancelled += len(o.Successful)
	}
}

// Lines renders the summary for a terminal.
func (s Summary) Lines() []string {
	return []string{
		fmt.Sprintf("Process completed in %.1fs", s.Duration.Seconds()),
		fmt.Sprintf("Late cancellations: %d fetched, %d new, %d duplicates, %d rejected", s.LateCancellations, s.NewLateCancellations, s.Duplicates, s.Rejected),
		fmt.Sprintf("Tags: %d assigned, %d failed", s.TagsAssigned, s.TagsFailed),
		fmt.Sprintf("Members: %d processed (%d completed, %d partial, %d failed, %d errors)", s.Members, s.Completed, s.Partial, s.Failed, s.Errors),
		fmt.Sprintf("Total bookings cancelled: %d", s.BookingsCancelled),
	}
}

// Annotations renders GitHub Actions workflow commands.
func (s Summary) Annotations() []string {
	out := []string{
		fmt.Sprintf("::notice title=Cancellation Complete::Processed %d members, cancelled %d bookings in %.1fs", s.Members, s.BookingsCancelled, s.Duration.Seconds()),
	}
	if s.Errors > 0 {
		out = append(out, fmt.Sprintf("::warning title=Processing Errors::%d members encountered errors", s.Errors))
	}
	return out
}
