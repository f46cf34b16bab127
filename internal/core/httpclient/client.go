// Package httpclient configures the HTTP client used to fetch remote datasets.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewDownload creates a client for large archive downloads. Only connection
// setup is bounded; the body may take as long as it takes, and callers cancel
// through the request context.
func NewDownload() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport}
}
