// ABOUTME: Error values returned by Momence fetch operations
// ABOUTME: StatusError keeps the HTTP code and a truncated body for logs
package momence

import (
	"errors"
	"fmt"
)

// ErrReportTimeout means the late cancellation report never completed.
var ErrReportTimeout = errors.New("late cancellation report did not complete")

const maxErrorBody = 200

// StatusError is an HTTP error on a fetch path.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: API error %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: API error %d: %s", e.Op, e.Code, e.Body)
}

func newStatusError(op string, code int, body []byte) *StatusError {
	s := string(body)
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return &StatusError{Op: op, Code: code, Body: s}
}
