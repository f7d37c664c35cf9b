// ABOUTME: Composite-key index of recorded late cancellations
// ABOUTME: Prevents duplicate rows and supplies per-member history to the tagger
package tagging

import (
	"time"

	"github.com/harperreed/latecancel/models"
)

// EventIndex tracks known late cancellation keys and per-member history.
type EventIndex struct {
	keys    map[string]struct{}
	history map[int64][]Cancellation
	cutoff  time.Time
}

// NewEventIndex builds the index from persisted rows. Rows without a
// cancelled date carry no identity and are ignored. Only rows of a known
// member on or after cutoff enter the history.
func NewEventIndex(events []models.LateCancellationEvent, cutoff time.Time) *EventIndex {
	idx := &EventIndex{
		keys:    make(map[string]struct{}, len(events)),
		history: make(map[int64][]Cancellation),
		cutoff:  cutoff,
	}
	for _, e := range events {
		idx.Add(e)
	}
	return idx
}

// Seen reports whether key is already recorded.
func (idx *EventIndex) Seen(key string) bool {
	_, ok := idx.keys[key]
	return ok
}

// Add records an event so later duplicates in the same run are caught.
func (idx *EventIndex) Add(e models.LateCancellationEvent) {
	if e.CancelledDate == "" {
		return
	}
	idx.keys[e.Key()] = struct{}{}
	if e.MemberID <= 0 {
		return
	}

	at, err := models.ParseVenueTime(e.CancelledDate)
	if err != nil || at.Before(idx.cutoff) {
		return
	}
	idx.history[e.MemberID] = append(idx.history[e.MemberID], FromEvent(e))
}

// History returns a copy of the member's recorded cancellations since the cutoff.
func (idx *EventIndex) History(memberID int64) []Cancellation {
	h := idx.history[memberID]
	out := make([]Cancellation, len(h))
	copy(out, h)
	return out
}

// Len is the number of distinct keys.
func (idx *EventIndex) Len() int {
	return len(idx.keys)
}

// Members is the number of members with history.
func (idx *EventIndex) Members() int {
	return len(idx.history)
}
