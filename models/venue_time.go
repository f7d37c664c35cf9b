// ABOUTME: Venue timezone helpers for sheet date columns
// ABOUTME: Formats and parses the DD-MM-YYYY, HH:MM:SS strings stored in the sheets
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VenueLayout is the date layout written to every sheet date column.
const VenueLayout = "02-01-2006, 15:04:05"

// VenueZone is Asia/Kolkata. India has no DST so a fixed offset avoids tzdata.
var VenueZone = time.FixedZone("IST", 5*60*60+30*60)

// TaggingCutoff is the first instant late cancellations count toward tagging.
var TaggingCutoff = time.Date(2025, time.October, 1, 0, 0, 0, 0, VenueZone)

// FormatVenueTime renders t in venue time. The zero time renders as "".
func FormatVenueTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(VenueZone).Format(VenueLayout)
}

// FormatVenueTimePtr is FormatVenueTime for optional timestamps.
func FormatVenueTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatVenueTime(*t)
}

// ParseVenueTime parses a day-month-year venue string. A missing time part
// means midnight.
func ParseVenueTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty venue date")
	}

	datePart, timePart, hasTime := strings.Cut(s, ",")
	datePart = strings.TrimSpace(datePart)
	timePart = strings.TrimSpace(timePart)
	if !hasTime || timePart == "" {
		timePart = "00:00:00"
	}

	dmy, err := splitInts(datePart, "-", 3)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse venue date %q: %w", s, err)
	}
	hms, err := splitInts(timePart, ":", 3)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse venue time %q: %w", s, err)
	}

	day, month, year := dmy[0], dmy[1], dmy[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("parse venue date %q: out of range", s)
	}
	if hms[0] > 23 || hms[1] > 59 || hms[2] > 59 {
		return time.Time{}, fmt.Errorf("parse venue time %q: out of range", s)
	}

	t := time.Date(year, time.Month(month), day, hms[0], hms[1], hms[2], 0, VenueZone)
	if t.Day() != day {
		// time.Date normalises 31-02 into March
		return time.Time{}, fmt.Errorf("parse venue date %q: no such day", s)
	}
	return t, nil
}

func splitInts(s, sep string, n int) ([]int, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("want %d fields, got %d", n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative field %d", v)
		}
		out[i] = v
	}
	return out, nil
}

// StartOfDay returns local midnight of the day containing now.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// EndOfVenueDay returns the last millisecond of the venue day containing now.
func EndOfVenueDay(now time.Time) time.Time {
	v := now.In(VenueZone)
	y, m, d := v.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), VenueZone)
}
