// ABOUTME: Decodes Momence API payloads into typed records
// ABOUTME: Missing required fields fail with a DecodeError instead of zero values
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DecodeError reports a payload that does not match the expected record shape.
type DecodeError struct {
	Entity string
	Index  int
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode %s: %s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("decode %s[%d]: %s: %s", e.Entity, e.Index, e.Field, e.Reason)
}

type memberWire struct {
	MemberID    *int64  `json:"memberId"`
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber string  `json:"phoneNumber"`
	FirstSeen   *string `json:"firstSeen"`
	LastSeen    *string `json:"lastSeen"`
}

type membersEnvelope struct {
	Payload []json.RawMessage `json:"payload"`
}

// DecodeMembers decodes the customers list envelope {"payload": [...]}.
func DecodeMembers(data []byte) ([]Member, error) {
	var env membersEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Entity: "members", Index: -1, Field: "payload", Reason: err.Error()}
	}

	members := make([]Member, 0, len(env.Payload))
	for i, raw := range env.Payload {
		var w memberWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, &DecodeError{Entity: "member", Index: i, Field: "object", Reason: err.Error()}
		}
		if w.MemberID == nil {
			return nil, &DecodeError{Entity: "member", Index: i, Field: "memberId", Reason: "missing"}
		}
		members = append(members, Member{
			MemberID:    *w.MemberID,
			Email:       w.Email,
			FirstName:   w.FirstName,
			LastName:    w.LastName,
			PhoneNumber: w.PhoneNumber,
			FirstSeen:   parseOptionalTime(w.FirstSeen),
			LastSeen:    parseOptionalTime(w.LastSeen),
		})
	}
	return members, nil
}

type bookingWire struct {
	BookingID *int64  `json:"bookingId"`
	SessionID *int64  `json:"sessionId"`
	Type      string  `json:"type"`
	StartsAt  *string `json:"startsAt"`
	DeletedAt *string `json:"deletedAt"`
	IsVoided  bool    `json:"isVoided"`
}

// DecodeBookings decodes a member history array. Only session items need a
// bookingId; other entry types are passed through for the filter to drop.
func DecodeBookings(data []byte) ([]Booking, error) {
	if strings.TrimSpace(string(data)) == "null" {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &DecodeError{Entity: "history", Index: -1, Field: "items", Reason: err.Error()}
	}

	bookings := make([]Booking, 0, len(raws))
	for i, raw := range raws {
		var w bookingWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, &DecodeError{Entity: "booking", Index: i, Field: "object", Reason: err.Error()}
		}
		b := Booking{
			Type:      w.Type,
			StartsAt:  parseOptionalTime(w.StartsAt),
			DeletedAt: parseOptionalTime(w.DeletedAt),
			IsVoided:  w.IsVoided,
		}
		if w.DeletedAt != nil && *w.DeletedAt != "" && b.DeletedAt == nil {
			// unparseable but present still means deleted
			b.DeletedAt = &time.Time{}
		}
		if w.Type == BookingTypeSession && w.BookingID == nil {
			return nil, &DecodeError{Entity: "booking", Index: i, Field: "bookingId", Reason: "missing on session item"}
		}
		if w.BookingID != nil {
			b.BookingID = *w.BookingID
		}
		if w.SessionID != nil {
			b.SessionID = *w.SessionID
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

type lateCancellationWire struct {
	MemberID       *int64  `json:"memberId"`
	CustomerName   string  `json:"customerName"`
	CustomerEmail  string  `json:"customerEmail"`
	CancelledEvent string  `json:"cancelledEvent"`
	CancelledDate  *string `json:"cancelledDate"`
	SessionDate    *string `json:"sessionDate"`
	Paid           Amount  `json:"paid"`
	PaymentMethod  string  `json:"paymentMethod"`
	MembershipName string  `json:"membershipName"`
	HomeLocation   string  `json:"homeLocation"`
	ChargedPenalty Amount  `json:"chargedPenaltyAmountInCurrency"`
}

// DecodeLateCancellations decodes report items. Rows missing a positive
// memberId or a cancelledDate are returned as rejects so one bad row does not sink the report.
func DecodeLateCancellations(raws []json.RawMessage) ([]LateCancellationItem, []*DecodeError) {
	items := make([]LateCancellationItem, 0, len(raws))
	var rejects []*DecodeError
	for i, raw := range raws {
		var w lateCancellationWire
		if err := json.Unmarshal(raw, &w); err != nil {
			rejects = append(rejects, &DecodeError{Entity: "late cancellation", Index: i, Field: "object", Reason: err.Error()})
			continue
		}
		if w.MemberID == nil {
			rejects = append(rejects, &DecodeError{Entity: "late cancellation", Index: i, Field: "memberId", Reason: "missing"})
			continue
		}
		if *w.MemberID <= 0 {
			rejects = append(rejects, &DecodeError{Entity: "late cancellation", Index: i, Field: "memberId", Reason: fmt.Sprintf("not a member id: %d", *w.MemberID)})
			continue
		}
		cancelled := parseOptionalTime(w.CancelledDate)
		if cancelled == nil {
			rejects = append(rejects, &DecodeError{Entity: "late cancellation", Index: i, Field: "cancelledDate", Reason: "missing or not a timestamp"})
			continue
		}
		item := LateCancellationItem{
			MemberID:       *w.MemberID,
			CustomerName:   w.CustomerName,
			CustomerEmail:  w.CustomerEmail,
			CancelledEvent: w.CancelledEvent,
			CancelledDate:  *cancelled,
			Paid:           w.Paid,
			PaymentMethod:  w.PaymentMethod,
			MembershipName: w.MembershipName,
			HomeLocation:   w.HomeLocation,
			ChargedPenalty: w.ChargedPenalty,
		}
		if s := parseOptionalTime(w.SessionDate); s != nil {
			item.SessionDate = *s
		}
		items = append(items, item)
	}
	return items, rejects
}

func parseOptionalTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
