// Package client submits story jobs to a storybook server and follows the
// resulting event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"storybook/internal/events"
	"storybook/internal/executor"
	"storybook/internal/httpclient"
	"storybook/internal/logging"
	"storybook/internal/observability"
	"storybook/internal/stream"
)

const maxErrorBody = 64 << 10

// StatusError reports a run request the server refused before streaming.
type StatusError struct {
	Code    int
	Message string
	Details string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Client talks to one storybook server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
	tracer  *observability.TracerProvider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the streaming client. It must not set a Timeout, as
// streams last for the whole run.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// WithTracer enables a span per submitted run.
func WithTracer(tp *observability.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:  logging.NewComponentLogger("Client"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = httpclient.NewStreaming(httpclient.DefaultResponseHeaderTimeout, c.logger)
	}
	return c
}

// Stream is an open event stream. Close releases the connection.
type Stream struct {
	RunID  string
	reader *stream.Reader
	closer io.Closer
	end    func(error)
}

// Next returns the next event, io.EOF on a clean end of stream, or a
// *stream.TruncatedError when the connection dropped mid-frame.
func (s *Stream) Next() (events.Event, error) {
	ev, err := s.reader.Next()
	if err != nil && s.end != nil {
		s.end(err)
		s.end = nil
	}
	return ev, err
}

// Skipped counts malformed frames dropped so far.
func (s *Stream) Skipped() int { return s.reader.Skipped() }

// Close releases the underlying connection.
func (s *Stream) Close() error {
	if s.end != nil {
		s.end(nil)
		s.end = nil
	}
	return s.closer.Close()
}

// SubmitOption configures one submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	record io.Writer
}

// WithRecorder copies the raw stream bytes to w, producing a file the replay
// executor can play back.
func WithRecorder(w io.Writer) SubmitOption {
	return func(o *submitOptions) {
		o.record = w
	}
}

// Submit posts job and returns the open event stream. A refusal before
// streaming is returned as *StatusError.
func (c *Client) Submit(ctx context.Context, job executor.Job, opts ...SubmitOption) (*Stream, error) {
	options := applySubmitOptions(opts)

	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanClientSubmit,
		attribute.String(observability.AttrTransport, "sse"),
		attribute.Int(observability.AttrPageCount, job.PageCount))
	end := func(err error) {
		if err != nil && !errors.Is(err, io.EOF) {
			span.SetAttributes(observability.ErrorAttrs(err)...)
		}
		span.End()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/run-script", bytes.NewReader(body))
	if err != nil {
		end(err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("submit job: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		statusErr := decodeStatusError(resp)
		end(statusErr)
		return nil, statusErr
	}

	runID := resp.Header.Get("X-Run-Id")
	span.SetAttributes(attribute.String(observability.AttrRunID, runID))
	c.logger.Info("Run %s accepted: %s", runID, job)

	var src io.Reader = resp.Body
	if options.record != nil {
		src = io.TeeReader(resp.Body, options.record)
	}
	return &Stream{
		RunID:  runID,
		reader: c.newReader(src),
		closer: resp.Body,
		end:    end,
	}, nil
}

func (c *Client) newReader(src io.Reader) *stream.Reader {
	return stream.NewReader(src, stream.WithDiagnostics(func(err *stream.FrameError) {
		c.logger.Warn("Skipping malformed frame: %v", err)
	}))
}

func applySubmitOptions(opts []SubmitOption) submitOptions {
	var options submitOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

func decodeStatusError(resp *http.Response) *StatusError {
	statusErr := &StatusError{Code: resp.StatusCode}
	data := httpclient.ErrorBody(resp.Body, maxErrorBody)
	if len(data) == 0 {
		statusErr.Message = http.StatusText(resp.StatusCode)
		return statusErr
	}
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		statusErr.Message = body.Error
		statusErr.Details = body.Details
		return statusErr
	}
	statusErr.Message = string(data)
	return statusErr
}
