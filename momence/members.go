// ABOUTME: Member list and booking history endpoints
// ABOUTME: Fetch paths fail fast with StatusError rather than retrying
package momence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/harperreed/latecancel/models"
)

type tagFilter struct {
	Type         string      `json:"type"`
	CustomerTags tagSelector `json:"customerTags"`
}

type tagSelector struct {
	Type            *string `json:"type"`
	Tags            []int64 `json:"tags"`
	CustomerHaveTag string  `json:"customerHaveTag"`
}

// MembersURL builds the customer query filtered to the targeting tags.
func (c *Client) MembersURL() string {
	filter, _ := json.Marshal(tagFilter{
		Type: "and",
		CustomerTags: tagSelector{
			Tags:            c.cfg.TargetTagIDs,
			CustomerHaveTag: "have",
		},
	})
	q := url.Values{}
	q.Set("filters", string(filter))
	q.Set("query", "")
	q.Set("page", "0")
	q.Set("pageSize", fmt.Sprint(c.cfg.PageSize))
	return c.hostURL(c.cfg.APIBase, "/customers") + "?" + q.Encode()
}

// FetchMembers lists customers carrying any of the targeting tags.
func (c *Client) FetchMembers(ctx context.Context) ([]models.Member, error) {
	status, body, err := c.send(ctx, http.MethodGet, c.MembersURL(), nil, BulkTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %s: %w", ErrorCode(err), err)
	}
	if status >= 400 {
		return nil, newStatusError("fetch members", status, body)
	}

	members, err := models.DecodeMembers(body)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	c.logger.Info("fetched members", "count", len(members))
	return members, nil
}

// FetchHistory returns a member's full booking history.
func (c *Client) FetchHistory(ctx context.Context, memberID int64) ([]models.Booking, error) {
	u := c.hostURL(c.cfg.ReadonlyAPIBase, "/customers/%d/history", memberID)
	status, body, err := c.send(ctx, http.MethodGet, u, nil, HistoryTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetch history %d: %w", memberID, err)
	}
	if status >= 400 {
		return nil, newStatusError(fmt.Sprintf("fetch history %d", memberID), status, body)
	}

	bookings, err := models.DecodeBookings(body)
	if err != nil {
		return nil, fmt.Errorf("fetch history %d: %w", memberID, err)
	}
	return bookings, nil
}
