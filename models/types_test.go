// ABOUTME: Tests for member, booking, and late cancellation models
// ABOUTME: Validates outcome derivations, amount decoding, and venue date handling
package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeProcessingReason(t *testing.T) {
	tests := []struct {
		name    string
		outcome CancellationOutcome
		want    string
	}{
		{"no bookings", CancellationOutcome{Status: StatusCompleted}, "No future bookings found"},
		{"mixed", CancellationOutcome{Status: StatusPartial, Successful: []int64{1, 2}, Failed: []string{"3(HTTP 500)"}, Total: 3}, "3 future bookings found - 2 successful, 1 failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.ProcessingReason(); got != tt.want {
				t.Errorf("ProcessingReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcomeActualAction(t *testing.T) {
	cases := map[string]string{
		StatusCompleted:    ActionAllCancelled,
		StatusPartial:      ActionPartialCancelled,
		StatusFailed:       ActionCancellationFailed,
		StatusError:        ActionErrorOccurred,
		StatusNotProcessed: ActionErrorOccurred,
	}
	for status, want := range cases {
		o := CancellationOutcome{Status: status}
		if got := o.ActualAction(); got != want {
			t.Errorf("status %s: got %s, want %s", status, got, want)
		}
	}
}

func TestNotProcessedOutcome(t *testing.T) {
	o := NotProcessedOutcome(42)
	assert.Equal(t, int64(42), o.MemberID)
	assert.Equal(t, StatusNotProcessed, o.Status)
	assert.Equal(t, "Skipped", o.Message)
	assert.Equal(t, "", o.SuccessfulIDs())
}

func TestAmountUnmarshal(t *testing.T) {
	var row struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
		D Amount `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": 12.5, "b": "300", "c": null}`), &row)
	require.NoError(t, err)

	assert.Equal(t, "12.5", row.A.String())
	assert.Equal(t, "300", row.B.String())
	assert.Equal(t, "0", row.C.String())
	assert.Equal(t, "0", row.D.String())
}

func TestFormatVenueTime(t *testing.T) {
	ts := time.Date(2025, time.October, 1, 18, 45, 5, 0, time.UTC)
	assert.Equal(t, "02-10-2025, 00:15:05", FormatVenueTime(ts))
	assert.Equal(t, "", FormatVenueTime(time.Time{}))
	assert.Equal(t, "", FormatVenueTimePtr(nil))
}

func TestParseVenueTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "05-10-2025, 14:30:00", want: time.Date(2025, 10, 5, 14, 30, 0, 0, VenueZone)},
		{in: "05-10-2025", want: time.Date(2025, 10, 5, 0, 0, 0, 0, VenueZone)},
		{in: "13-01-2025, 01:02:03", want: time.Date(2025, 1, 13, 1, 2, 3, 0, VenueZone)},
		{in: "", wantErr: true},
		{in: "not a date", wantErr: true},
		{in: "2025-10-05T10:00:00Z", wantErr: true},
		{in: "31-02-2025, 00:00:00", wantErr: true},
		{in: "05-13-2025, 00:00:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVenueTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestVenueTimeRoundTrip(t *testing.T) {
	ts := time.Date(2025, time.November, 3, 4, 5, 6, 0, time.UTC)
	parsed, err := ParseVenueTime(FormatVenueTime(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
}

func TestEventKeysMatch(t *testing.T) {
	cancelled := time.Date(2025, 10, 5, 4, 30, 0, 0, time.UTC)
	session := time.Date(2025, 10, 5, 6, 0, 0, 0, time.UTC)
	item := LateCancellationItem{MemberID: 7, CancelledDate: cancelled, SessionDate: session}
	event := LateCancellationEvent{MemberID: 7, CancelledDate: "05-10-2025, 10:00:00", SessionDate: "05-10-2025, 11:30:00"}

	assert.Equal(t, "7_05-10-2025, 10:00:00_05-10-2025, 11:30:00", item.Key())
	assert.Equal(t, item.Key(), event.Key())
}

func TestDecodeMembers(t *testing.T) {
	payload := `{"payload":[{"memberId":1,"email":"a@b.c","firstName":"Asha","firstSeen":"2025-01-02T03:04:05.000Z"},{"memberId":2}]}`
	members, err := DecodeMembers([]byte(payload))
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(1), members[0].MemberID)
	require.NotNil(t, members[0].FirstSeen)
	assert.Nil(t, members[1].FirstSeen)

	_, err = DecodeMembers([]byte(`{"payload":[{"email":"x@y.z"}]}`))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "memberId", decodeErr.Field)
	assert.Equal(t, 0, decodeErr.Index)
}

func TestDecodeBookings(t *testing.T) {
	payload := `[
		{"type":"session","bookingId":10,"sessionId":20,"startsAt":"2030-01-01T10:00:00Z","isVoided":false},
		{"type":"purchase"},
		{"type":"session","bookingId":11,"sessionId":21,"startsAt":"2030-01-02T10:00:00Z","deletedAt":"2029-12-01T00:00:00Z"}
	]`
	bookings, err := DecodeBookings([]byte(payload))
	require.NoError(t, err)
	require.Len(t, bookings, 3)
	assert.Equal(t, int64(10), bookings[0].BookingID)
	assert.Nil(t, bookings[1].StartsAt)
	assert.NotNil(t, bookings[2].DeletedAt)

	_, err = DecodeBookings([]byte(`[{"type":"session","sessionId":1}]`))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "bookingId", decodeErr.Field)

	none, err := DecodeBookings([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDecodeLateCancellations(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"memberId":5,"customerName":"Ravi","cancelledDate":"2025-10-05T04:30:00Z","sessionDate":"2025-10-05T06:00:00Z","paid":500,"membershipName":"Unlimited Monthly","chargedPenaltyAmountInCurrency":null}`),
		json.RawMessage(`{"customerName":"No Id","cancelledDate":"2025-10-05T04:30:00Z"}`),
		json.RawMessage(`{"memberId":6,"cancelledDate":"yesterday"}`),
		json.RawMessage(`{"memberId":0,"cancelledDate":"2025-10-05T04:30:00Z"}`),
		json.RawMessage(`{"memberId":-4,"cancelledDate":"2025-10-05T04:30:00Z"}`),
	}
	items, rejects := DecodeLateCancellations(raws)
	require.Len(t, items, 1)
	require.Len(t, rejects, 4)

	assert.Equal(t, int64(5), items[0].MemberID)
	assert.Equal(t, "500", items[0].Paid.String())
	assert.Equal(t, "0", items[0].ChargedPenalty.String())
	assert.Equal(t, "memberId", rejects[0].Field)
	assert.Equal(t, "cancelledDate", rejects[1].Field)
	assert.Equal(t, 2, rejects[1].Index)
	for _, r := range rejects[2:] {
		assert.Equal(t, "memberId", r.Field)
		assert.Contains(t, r.Reason, "not a member id")
	}
}
