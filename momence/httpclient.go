// ABOUTME: Shared HTTP transport for Momence calls
// ABOUTME: Per-call deadlines come from contexts, the client timeout is only a backstop
package momence

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds a pooled client. timeout caps any single exchange.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}
