// ABOUTME: Repeat late cancellation rule deciding when a member gets tagged
// ABOUTME: Fires on every third qualifying cancellation when the latest three span at most seven days
package tagging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/latecancel/models"
)

// Cancellation is the slice of a late cancellation the rule looks at.
// Dates are venue-formatted strings as stored in the sheet.
type Cancellation struct {
	CancelledDate  string
	SessionDate    string
	CustomerName   string
	MembershipName string
}

// FromEvent projects a persisted row.
func FromEvent(e models.LateCancellationEvent) Cancellation {
	return Cancellation{
		CancelledDate:  e.CancelledDate,
		SessionDate:    e.SessionDate,
		CustomerName:   e.CustomerName,
		MembershipName: e.MembershipName,
	}
}

// Decision is the outcome of evaluating one new cancellation.
type Decision struct {
	ShouldTag       bool
	Reason          string
	QualifyingCount int
	Window          []Cancellation
}

// Tagger holds the rule parameters.
type Tagger struct {
	Cutoff     time.Time
	WindowSize int
	MaxSpan    time.Duration
	Keyword    string
	// Parse reads stored dates. Defaults to models.ParseVenueTime.
	Parse func(string) (time.Time, error)
}

// NewTagger returns the production rule: 3 unlimited-membership cancellations
// since the cutoff within 7 days.
func NewTagger() *Tagger {
	return &Tagger{
		Cutoff:     models.TaggingCutoff,
		WindowSize: 3,
		MaxSpan:    7 * 24 * time.Hour,
		Keyword:    "unlimited",
		Parse:      models.ParseVenueTime,
	}
}

// IsUnlimited reports whether a membership name contains the keyword, ignoring case.
func (t *Tagger) IsUnlimited(membership string) bool {
	return strings.Contains(strings.ToLower(membership), strings.ToLower(t.Keyword))
}

type dated struct {
	c  Cancellation
	at time.Time
}

// Evaluate decides whether candidate, added to the member's history, triggers a tag.
func (t *Tagger) Evaluate(history []Cancellation, candidate Cancellation) Decision {
	parse := t.Parse
	if parse == nil {
		parse = models.ParseVenueTime
	}

	all := make([]Cancellation, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, candidate)

	var qualifying []dated
	for _, c := range all {
		at, err := parse(c.CancelledDate)
		if err != nil || at.Before(t.Cutoff) || !t.IsUnlimited(c.MembershipName) {
			continue
		}
		qualifying = append(qualifying, dated{c: c, at: at})
	}
	count := len(qualifying)

	if count < t.WindowSize {
		if !t.IsUnlimited(candidate.MembershipName) {
			return Decision{
				Reason:          fmt.Sprintf("Membership '%s' does not include '%s'", candidate.MembershipName, t.Keyword),
				QualifyingCount: count,
			}
		}
		return Decision{
			Reason:          fmt.Sprintf("Only %d qualifying cancellations (need %d for tagging)", count, t.WindowSize),
			QualifyingCount: count,
		}
	}

	sort.SliceStable(qualifying, func(i, j int) bool {
		return qualifying[i].at.After(qualifying[j].at)
	})

	if count%t.WindowSize != 0 {
		return Decision{
			Reason:          fmt.Sprintf("%d qualifying cancellations (tag triggers at multiples of %d)", count, t.WindowSize),
			QualifyingCount: count,
		}
	}

	window := make([]Cancellation, t.WindowSize)
	for i := range window {
		window[i] = qualifying[i].c
	}
	newest, errNewest := parse(window[0].CancelledDate)
	oldest, errOldest := parse(window[len(window)-1].CancelledDate)
	if errNewest != nil || errOldest != nil {
		return Decision{
			Reason:          fmt.Sprintf("%d qualifying cancellations, but date parsing failed", count),
			QualifyingCount: count,
		}
	}

	span := newest.Sub(oldest)
	days := span.Hours() / 24
	if span <= t.MaxSpan {
		return Decision{
			ShouldTag: true,
			Reason: fmt.Sprintf("%d%s qualifying cancellation triggers tag (%d within %.1f days: %s to %s)",
				count, Ordinal(count), t.WindowSize, days, window[len(window)-1].CancelledDate, window[0].CancelledDate),
			QualifyingCount: count,
			Window:          window,
		}
	}
	return Decision{
		Reason: fmt.Sprintf("%d%s qualifying cancellation, but last %d span %.1f days (>%g)",
			count, Ordinal(count), t.WindowSize, days, t.MaxSpan.Hours()/24),
		QualifyingCount: count,
	}
}

// Ordinal returns the English suffix for n: st, nd, rd, or th.
func Ordinal(n int) string {
	j, k := n%10, n%100
	switch {
	case j == 1 && k != 11:
		return "st"
	case j == 2 && k != 12:
		return "nd"
	case j == 3 && k != 13:
		return "rd"
	}
	return "th"
}
