// Package httpclient builds the HTTP clients used to follow event streams.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"storybook/internal/logging"
)

// DefaultResponseHeaderTimeout bounds the wait for the server to accept or
// refuse a run. The body itself has no deadline, as a run may stream for
// many minutes.
const DefaultResponseHeaderTimeout = 30 * time.Second

// NewStreaming returns a client suitable for long-lived streaming responses.
// It never sets http.Client.Timeout; cancel the request context instead.
func NewStreaming(headerTimeout time.Duration, logger logging.Logger) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = DefaultResponseHeaderTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		// Compression would buffer frames inside intermediaries.
		DisableCompression: true,
	}
	return &http.Client{Transport: &loggingRoundTripper{base: transport, logger: logging.OrNop(logger)}}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Redacted(), time.Since(start), err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d in %s", req.Method, req.URL.Redacted(), resp.StatusCode, time.Since(start))
	return resp, nil
}
