// ABOUTME: Column layouts and row conversions for the two workflow tabs
// ABOUTME: Maps typed records onto header-keyed sheet rows and back
package workflow

import (
	"strconv"
	"strings"

	"github.com/harperreed/latecancel/models"
	"github.com/harperreed/latecancel/sheets"
)

// Default tab titles.
const (
	MemberSheetTitle     = "MembersCancellation"
	LateCancelSheetTitle = "Late Cancelled"
)

// LateCancelColumns is the header of the late cancellation log.
var LateCancelColumns = []string{
	"memberId", "customerName", "customerEmail", "cancelledEvent", "cancelledDate",
	"sessionDate", "paid", "paymentMethod", "membershipName", "homeLocation",
	"chargedPenaltyAmountInCurrency", "occurrenceCount", "action", "status",
	"processingReason", "actualAction",
}

// MemberColumns is the header of the member outcome table.
var MemberColumns = []string{
	"memberId", "email", "firstName", "lastName", "phoneNumber",
	"firstSeen", "lastSeen", "status", "message", "lastProcessed",
	"successfulCancellations", "failedCancellations", "totalBookings",
	"processingReason", "actualAction",
}

func eventFromItem(item models.LateCancellationItem) models.LateCancellationEvent {
	return models.LateCancellationEvent{
		MemberID:       item.MemberID,
		CustomerName:   item.CustomerName,
		CustomerEmail:  item.CustomerEmail,
		CancelledEvent: item.CancelledEvent,
		CancelledDate:  models.FormatVenueTime(item.CancelledDate),
		SessionDate:    models.FormatVenueTime(item.SessionDate),
		Paid:           item.Paid,
		PaymentMethod:  item.PaymentMethod,
		MembershipName: item.MembershipName,
		HomeLocation:   item.HomeLocation,
		PenaltyAmount:  item.ChargedPenalty,
	}
}

func rowFromEvent(e models.LateCancellationEvent) sheets.Row {
	return sheets.Row{
		"memberId":                       strconv.FormatInt(e.MemberID, 10),
		"customerName":                   e.CustomerName,
		"customerEmail":                  e.CustomerEmail,
		"cancelledEvent":                 e.CancelledEvent,
		"cancelledDate":                  e.CancelledDate,
		"sessionDate":                    e.SessionDate,
		"paid":                           e.Paid.String(),
		"paymentMethod":                  e.PaymentMethod,
		"membershipName":                 e.MembershipName,
		"homeLocation":                   e.HomeLocation,
		"chargedPenaltyAmountInCurrency": e.PenaltyAmount.String(),
		"occurrenceCount":                strconv.Itoa(e.OccurrenceCount),
		"action":                         e.Action,
		"status":                         e.Status,
		"processingReason":               e.ProcessingReason,
		"actualAction":                   e.ActualAction,
	}
}

// eventFromRow reads a stored row. Unparseable ids become 0 and are ignored
// by the event index.
func eventFromRow(r sheets.Row) models.LateCancellationEvent {
	id, _ := strconv.ParseInt(strings.TrimSpace(r["memberId"]), 10, 64)
	count, _ := strconv.Atoi(strings.TrimSpace(r["occurrenceCount"]))
	return models.LateCancellationEvent{
		MemberID:         id,
		CustomerName:     r["customerName"],
		CustomerEmail:    r["customerEmail"],
		CancelledEvent:   r["cancelledEvent"],
		CancelledDate:    r["cancelledDate"],
		SessionDate:      r["sessionDate"],
		Paid:             models.Amount(r["paid"]),
		PaymentMethod:    r["paymentMethod"],
		MembershipName:   r["membershipName"],
		HomeLocation:     r["homeLocation"],
		PenaltyAmount:    models.Amount(r["chargedPenaltyAmountInCurrency"]),
		OccurrenceCount:  count,
		Action:           r["action"],
		Status:           r["status"],
		ProcessingReason: r["processingReason"],
		ActualAction:     r["actualAction"],
	}
}

func rowFromOutcome(m models.Member, o models.CancellationOutcome, processedAt string) sheets.Row {
	return sheets.Row{
		"memberId":                strconv.FormatInt(m.MemberID, 10),
		"email":                   m.Email,
		"firstName":               m.FirstName,
		"lastName":                m.LastName,
		"phoneNumber":             m.PhoneNumber,
		"firstSeen":               models.FormatVenueTimePtr(m.FirstSeen),
		"lastSeen":                models.FormatVenueTimePtr(m.LastSeen),
		"status":                  o.Status,
		"message":                 o.Message,
		"lastProcessed":           processedAt,
		"successfulCancellations": o.SuccessfulIDs(),
		"failedCancellations":     strings.Join(o.Failed, ","),
		"totalBookings":           strconv.Itoa(o.Total),
		"processingReason":        o.ProcessingReason(),
		"actualAction":            o.ActualAction(),
	}
}
