// ABOUTME: Bounded retry with linear backoff around single Momence API calls
// ABOUTME: Exhausted retries come back as Attempt data instead of Go errors
package momence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/latecancel/metrics"
)

// Error codes carried by failed attempts that never got an HTTP status.
const (
	CodeTimeout      = "TIMEOUT"
	CodeNetwork      = "NETWORK_ERROR"
	CodeCancelled    = "CANCELLED"
	DefaultRetries   = 2
	DefaultBaseDelay = time.Second
)

// Call performs one HTTP exchange and returns the status and body.
type Call func(ctx context.Context) (status int, body []byte, err error)

// Attempt is the final result of a retried call.
type Attempt struct {
	OK         bool
	StatusCode int
	Body       []byte
	Err        string
	Attempts   int
}

// Retrier retries failed calls up to MaxRetries extra times. The wait before
// retry n (0-based) is BaseDelay*(n+1).
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *log.Logger
}

// NewRetrier returns a retrier with the default budget of 2 retries and 1s base delay.
func NewRetrier(logger *log.Logger) *Retrier {
	if logger == nil {
		logger = log.Default()
	}
	return &Retrier{MaxRetries: DefaultRetries, BaseDelay: DefaultBaseDelay, Logger: logger}
}

// Execute runs call until it succeeds, hits a terminal failure, or the budget is spent.
// 404 and timeouts are terminal. Any other status >= 400 and other network errors retry.
func (r *Retrier) Execute(ctx context.Context, op string, call Call) Attempt {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}

	var res Attempt
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		res.Attempts = attempt + 1
		started := time.Now()
		status, body, err := call(ctx)
		elapsed := time.Since(started)

		if err != nil {
			res.StatusCode, res.Body = 0, nil
			res.Err = classifyNetworkError(err)
			metrics.ObserveAPICall(op, "network_error", elapsed)
			if res.Err != CodeNetwork {
				return res
			}
		} else {
			res.StatusCode, res.Body = status, body
			if status < 400 {
				res.OK, res.Err = true, ""
				metrics.ObserveAPICall(op, "ok", elapsed)
				return res
			}
			res.Err = fmt.Sprintf("HTTP %d", status)
			metrics.ObserveAPICall(op, fmt.Sprintf("http_%d", status), elapsed)
			if status == 404 {
				return res
			}
		}

		if attempt == r.MaxRetries {
			break
		}

		wait := r.BaseDelay * time.Duration(attempt+1)
		logger.Debug("retrying", "op", op, "attempt", attempt+1, "error", res.Err, "wait", wait)
		metrics.RecordRetry(op)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			res.Err = CodeCancelled
			return res
		}
	}
	return res
}

func classifyNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeNetwork
}
