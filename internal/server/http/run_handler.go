package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storybook/internal/config"
	"storybook/internal/logging"
	"storybook/internal/observability"
	"storybook/internal/server/app"
)

// RunHandler serves the run-script endpoints.
type RunHandler struct {
	runs     *app.RunService
	obs      *observability.Observability
	logger   logging.Logger
	maxBody  int64
	upgrader websocket.Upgrader
}

// RunHandlerOption configures a RunHandler.
type RunHandlerOption func(*RunHandler)

// WithRunHandlerObservability enables per-connection spans.
func WithRunHandlerObservability(obs *observability.Observability) RunHandlerOption {
	return func(h *RunHandler) {
		h.obs = obs
	}
}

// WithMaxBodyBytes bounds the job request body.
func WithMaxBodyBytes(limit int64) RunHandlerOption {
	return func(h *RunHandler) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

// WithOriginCheck decides which websocket origins may connect.
func WithOriginCheck(check func(*http.Request) bool) RunHandlerOption {
	return func(h *RunHandler) {
		if check != nil {
			h.upgrader.CheckOrigin = check
		}
	}
}

// NewRunHandler creates the run-script handler.
func NewRunHandler(runs *app.RunService, opts ...RunHandlerOption) *RunHandler {
	h := &RunHandler{
		runs:    runs,
		logger:  logging.NewComponentLogger("RunHandler"),
		maxBody: config.DefaultMaxBodyBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// HandleRunScript validates the job, starts it and streams its events as
// text/event-stream frames until the run ends or the client goes away.
func (h *RunHandler) HandleRunScript(c *gin.Context) {
	job, err := readJob(c.Writer, c.Request, h.maxBody)
	if err != nil {
		h.metrics().RecordRejected(c.Request.Context(), "validation")
		writeDomainError(c, h.logger, err)
		return
	}

	ctx, span := h.tracer().StartSpan(c.Request.Context(), observability.SpanSSEConnection,
		attribute.String(observability.AttrTransport, "sse"))
	defer span.End()

	st, err := h.runs.Start(ctx, job)
	if err != nil {
		markSpanError(span, err)
		writeDomainError(c, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String(observability.AttrRunID, st.ID))

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set(RunIDHeader, st.ID)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	result := st.Relay(sseSink{w: c.Writer})
	span.SetAttributes(observability.StatusAttrs(result.Status, result.Frames)...)
	if result.Status == observability.RunStatusFailed {
		markSpanError(span, result.Err)
	}
}

func (h *RunHandler) metrics() *observability.MetricsCollector {
	if h.obs == nil {
		return nil
	}
	return h.obs.Metrics
}

func (h *RunHandler) tracer() *observability.TracerProvider {
	if h.obs == nil {
		return nil
	}
	return h.obs.Tracer
}

// RunIDHeader carries the run id on stream responses.
const RunIDHeader = "X-Run-Id"

// sseSink writes each frame and flushes it to the client immediately.
type sseSink struct {
	w gin.ResponseWriter
}

func (s sseSink) WriteFrame(frame []byte) error {
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func markSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
