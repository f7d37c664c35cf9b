// ABOUTME: Momence REST client for members, history, cancellations, reports and tags
// ABOUTME: Every request carries the bearer token and session cookie header
package momence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Default endpoints and identifiers for the studio account.
const (
	DefaultAPIBase         = "https://api.momence.com"
	DefaultReadonlyAPIBase = "https://readonly-api.momence.com"
	DefaultHostID          = 13752
	DefaultLateCancelTagID = 164561
	DefaultPageSize        = 200
)

// DefaultTargetTagIDs are the customer tags whose members get their bookings cancelled.
var DefaultTargetTagIDs = []int64{166700, 164561}

// Per-call deadlines.
const (
	BulkTimeout     = 30 * time.Second
	HistoryTimeout  = 15 * time.Second
	MutationTimeout = 10 * time.Second
)

const maxResponseBody = 8 << 20

// Config holds the credentials and account wiring for a Client.
type Config struct {
	AccessToken     string
	Cookies         string
	HostID          int64
	APIBase         string
	ReadonlyAPIBase string
	TargetTagIDs    []int64
	LateCancelTagID int64
	PageSize        int
	PollAttempts    int
	PollInterval    time.Duration
}

func (c *Config) applyDefaults() {
	if c.HostID == 0 {
		c.HostID = DefaultHostID
	}
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.ReadonlyAPIBase == "" {
		c.ReadonlyAPIBase = DefaultReadonlyAPIBase
	}
	if len(c.TargetTagIDs) == 0 {
		c.TargetTagIDs = DefaultTargetTagIDs
	}
	if c.LateCancelTagID == 0 {
		c.LateCancelTagID = DefaultLateCancelTagID
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Client talks to the Momence host API.
type Client struct {
	cfg     Config
	http    *http.Client
	retrier *Retrier
	logger  *log.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetrier swaps the retry policy used for cancellations and tag writes.
func WithRetrier(r *Retrier) Option {
	return func(c *Client) { c.retrier = r }
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a Client with defaults filled in.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:    cfg,
		http:   NewHTTPClient(BulkTimeout + 5*time.Second),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = NewRetrier(c.logger)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) hostURL(base, format string, args ...any) string {
	return fmt.Sprintf("%s/host/%d", base, c.cfg.HostID) + fmt.Sprintf(format, args...)
}

// send performs one request bounded by timeout and returns status and body.
func (c *Client) send(ctx context.Context, method, url string, payload any, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Cookie", c.cfg.Cookies)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// ErrorCode maps a transport error to TIMEOUT, CANCELLED, or NETWORK_ERROR.
func ErrorCode(err error) string {
	return classifyNetworkError(err)
}
