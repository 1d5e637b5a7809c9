package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"storybook/internal/executor"
	"storybook/internal/observability"
)

// SubmitWebSocket runs job over the websocket endpoint. The returned Stream
// behaves like the one from Submit; a policy-violation close (rejected job)
// surfaces from Next as *StatusError with code 400.
func (c *Client) SubmitWebSocket(ctx context.Context, job executor.Job, opts ...SubmitOption) (*Stream, error) {
	options := applySubmitOptions(opts)

	ctx, span := c.tracer.StartSpan(ctx, observability.SpanClientSubmit,
		attribute.String(observability.AttrTransport, "websocket"),
		attribute.Int(observability.AttrPageCount, job.PageCount))
	end := func(err error) {
		if err != nil && !errors.Is(err, io.EOF) {
			span.SetAttributes(observability.ErrorAttrs(err)...)
		}
		span.End()
	}

	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/run-script/ws"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				err = decodeStatusError(resp)
			}
		}
		end(err)
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	payload, err := json.Marshal(job)
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, payload)
	}
	if err != nil {
		_ = conn.Close()
		end(err)
		return nil, fmt.Errorf("send job: %w", err)
	}

	// Closing the connection unblocks a pending read when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	var src io.Reader = &messageReader{conn: conn}
	if options.record != nil {
		src = io.TeeReader(src, options.record)
	}
	return &Stream{
		reader: c.newReader(src),
		closer: closerFunc(func() error {
			stop()
			return conn.Close()
		}),
		end: end,
	}, nil
}

// messageReader concatenates websocket text messages into one byte stream.
// A normal close is io.EOF.
type messageReader struct {
	conn *websocket.Conn
	cur  io.Reader
}

func (m *messageReader) Read(p []byte) (int, error) {
	for {
		if m.cur == nil {
			_, r, err := m.conn.NextReader()
			if err != nil {
				return 0, translateClose(err)
			}
			m.cur = r
		}
		n, err := m.cur.Read(p)
		if errors.Is(err, io.EOF) {
			m.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func translateClose(err error) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return err
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure:
		return io.EOF
	case websocket.ClosePolicyViolation:
		return &StatusError{Code: http.StatusBadRequest, Message: "invalid run request", Details: closeErr.Text}
	case websocket.CloseInternalServerErr:
		return &StatusError{Code: http.StatusInternalServerError, Message: "failed to start story generation", Details: closeErr.Text}
	default:
		return err
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
