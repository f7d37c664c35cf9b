// ABOUTME: Booking cancellation and tag assignment calls
// ABOUTME: Both go through the Retrier and report failures as data
package momence

import (
	"context"
	"net/http"

	"github.com/harperreed/latecancel/models"
)

type cancelPayload struct {
	MemberID                            int64  `json:"memberId"`
	SessionID                           int64  `json:"sessionId"`
	Refund                              bool   `json:"refund"`
	Currency                            string `json:"currency"`
	DisableNotifications                bool   `json:"disableNotifications"`
	IsLateCancellation                  bool   `json:"isLateCancellation"`
	CancelMemberPaymentPlanInstallments bool   `json:"cancelMemberPaymentPlanInstallments"`
}

// CancelBooking cancels one session booking with a refund and no member notification.
func (c *Client) CancelBooking(ctx context.Context, memberID int64, booking models.Booking) Attempt {
	u := c.hostURL(c.cfg.APIBase, "/session-bookings/%d/cancel", booking.BookingID)
	payload := cancelPayload{
		MemberID:             memberID,
		SessionID:            booking.SessionID,
		Refund:               true,
		Currency:             "inr",
		DisableNotifications: true,
	}
	return c.retrier.Execute(ctx, "cancel_booking", func(ctx context.Context) (int, []byte, error) {
		return c.send(ctx, http.MethodPost, u, payload, MutationTimeout)
	})
}

type tagPayload struct {
	TagIDs   []int64 `json:"tagIds"`
	Type     string  `json:"type"`
	EntityID int64   `json:"entityId"`
}

// AssignTag puts the late cancellation tag on a customer.
func (c *Client) AssignTag(ctx context.Context, memberID int64) models.TagAssignmentResult {
	u := c.hostURL(c.cfg.APIBase, "/tags/assign")
	payload := tagPayload{
		TagIDs:   []int64{c.cfg.LateCancelTagID},
		Type:     "customer",
		EntityID: memberID,
	}
	res := c.retrier.Execute(ctx, "assign_tag", func(ctx context.Context) (int, []byte, error) {
		return c.send(ctx, http.MethodPost, u, payload, MutationTimeout)
	})
	return models.TagAssignmentResult{MemberID: memberID, Success: res.OK, Error: res.Err}
}
