package http

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"storybook/internal/async"
	"storybook/internal/observability"
	"storybook/internal/server/app"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsMaxCloseReason   = 123
)

// HandleRunScriptWS is the websocket variant of HandleRunScript. The first
// client message is the job request; every frame is then sent as one text
// message with the same encoding as the event stream.
func (h *RunHandler) HandleRunScriptWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.maxBody)
	_ = conn.SetReadDeadline(time.Now().Add(wsHandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		h.logger.Warn("Websocket closed before a job request arrived: %v", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	job, err := decodeJob(data)
	if err != nil {
		h.metrics().RecordRejected(c.Request.Context(), "validation")
		h.closeWith(conn, websocket.ClosePolicyViolation, err)
		return
	}

	// A hijacked connection does not cancel the request context when the
	// peer leaves; the read loop below does.
	ctx, cancel := context.WithCancelCause(c.Request.Context())
	defer cancel(nil)

	ctx, span := h.tracer().StartSpan(ctx, observability.SpanWSConnection,
		attribute.String(observability.AttrTransport, "websocket"))
	defer span.End()

	st, err := h.runs.Start(ctx, job)
	if err != nil {
		markSpanError(span, err)
		code := websocket.CloseInternalServerErr
		if errors.Is(err, app.ErrValidation) {
			code = websocket.ClosePolicyViolation
		}
		h.closeWith(conn, code, err)
		return
	}
	span.SetAttributes(attribute.String(observability.AttrRunID, st.ID))

	async.Go(h.logger, "ws.read", func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel(err)
				return
			}
		}
	})

	result := st.Relay(wsSink{conn: conn})
	span.SetAttributes(observability.StatusAttrs(result.Status, result.Frames)...)
	if result.Status == observability.RunStatusFailed {
		markSpanError(span, result.Err)
	}
	if result.Status != observability.RunStatusCancelled {
		h.closeWith(conn, websocket.CloseNormalClosure, nil)
	}
}

func (h *RunHandler) closeWith(conn *websocket.Conn, code int, reason error) {
	text := ""
	if reason != nil {
		text = reason.Error()
		if len(text) > wsMaxCloseReason {
			text = strings.ToValidUTF8(text[:wsMaxCloseReason], "")
		}
	}
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout)); err != nil {
		h.logger.Debug("Failed to send websocket close frame: %v", err)
	}
}

type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) WriteFrame(frame []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}
