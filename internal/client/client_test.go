package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook/internal/events"
	"storybook/internal/executor"
	"storybook/internal/logging"
	"storybook/internal/runstate"
	"storybook/internal/stream"
)

var storyEvents = []events.Event{
	{Type: events.TypeRunStart, Start: "2024-05-01T10:00:00Z"},
	{Type: events.TypeCallStart, Tool: &events.Tool{Description: "Draft page one"}},
	{Type: events.TypeRunFinish, End: "2024-05-01T10:05:00Z"},
}

var testJob = executor.Job{Prompt: "an owl who collects buttons", PageCount: 3, OutputPath: "stories"}

func encodeAll(t *testing.T, evs []events.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range evs {
		frame, err := stream.Encode(ev)
		require.NoError(t, err)
		buf.Write(frame)
	}
	return buf.Bytes()
}

func sseServer(t *testing.T, body []byte, gotJob *executor.Job) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/run-script" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if gotJob != nil {
			_ = json.NewDecoder(r.Body).Decode(gotJob)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Run-Id", "run-42")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(stream.EncodeComment("heartbeat"))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s *Stream) ([]events.Type, error) {
	t.Helper()
	var got []events.Type
	for {
		ev, err := s.Next()
		if err != nil {
			return got, err
		}
		got = append(got, ev.Type)
	}
}

func TestSubmitStreamsEvents(t *testing.T) {
	var job executor.Job
	srv := sseServer(t, encodeAll(t, storyEvents), &job)

	c := New(srv.URL+"/", WithLogger(logging.Nop()))
	s, err := c.Submit(context.Background(), testJob)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "run-42", s.RunID)
	got, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []events.Type{events.TypeRunStart, events.TypeCallStart, events.TypeRunFinish}, got)
	assert.Equal(t, testJob, job)
}

func TestSubmitRecordsRawStream(t *testing.T) {
	body := encodeAll(t, storyEvents)
	srv := sseServer(t, body, nil)

	var rec bytes.Buffer
	s, err := New(srv.URL, WithLogger(logging.Nop())).Submit(context.Background(), testJob, WithRecorder(&rec))
	require.NoError(t, err)
	defer s.Close()
	_, err = collect(t, s)
	require.ErrorIs(t, err, io.EOF)

	assert.True(t, bytes.HasSuffix(rec.Bytes(), body))
	replayed, err := collect(t, &Stream{reader: stream.NewReader(&rec), closer: io.NopCloser(nil)})
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, replayed, len(storyEvents))
}

func TestSubmitReportsTruncation(t *testing.T) {
	body := encodeAll(t, storyEvents[:1])
	body = append(body, []byte(`event: {"type":"callSta`)...)
	srv := sseServer(t, body, nil)

	s, err := New(srv.URL, WithLogger(logging.Nop())).Submit(context.Background(), testJob)
	require.NoError(t, err)
	defer s.Close()

	got, err := collect(t, s)
	var truncated *stream.TruncatedError
	assert.ErrorAs(t, err, &truncated)
	assert.Equal(t, []events.Type{events.TypeRunStart}, got)
}

func TestSubmitDecodesRefusal(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		details string
	}{
		{name: "json body", status: http.StatusBadRequest, body: `{"error":"invalid run request","details":"page count 9 is out of range"}`, message: "invalid run request", details: "page count 9 is out of range"},
		{name: "plain body", status: http.StatusTooManyRequests, body: "slow down\n", message: "slow down"},
		{name: "empty body", status: http.StatusInternalServerError, message: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, WithLogger(logging.Nop())).Submit(context.Background(), testJob)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, tt.message, statusErr.Message)
			assert.Equal(t, tt.details, statusErr.Details)
		})
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithLogger(logging.Nop())).Submit(context.Background(), testJob)
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func wsServer(t *testing.T, handle func(conn *websocket.Conn, job executor.Job)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/run-script/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var job executor.Job
		if err := conn.ReadJSON(&job); err != nil {
			return
		}
		handle(conn, job)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitWebSocketStreamsEvents(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, job executor.Job) {
		for _, ev := range storyEvents {
			frame, _ := stream.Encode(ev)
			// Split each frame across two messages.
			_ = conn.WriteMessage(websocket.TextMessage, frame[:5])
			_ = conn.WriteMessage(websocket.TextMessage, frame[5:])
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finished"))
	})

	s, err := New(srv.URL, WithLogger(logging.Nop())).SubmitWebSocket(context.Background(), testJob)
	require.NoError(t, err)
	defer s.Close()

	got, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []events.Type{events.TypeRunStart, events.TypeCallStart, events.TypeRunFinish}, got)
}

func TestSubmitWebSocketPolicyViolation(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn, job executor.Job) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "prompt must not be empty"))
	})

	s, err := New(srv.URL, WithLogger(logging.Nop())).SubmitWebSocket(context.Background(), executor.Job{PageCount: 1})
	require.NoError(t, err)
	defer s.Close()

	_, err = collect(t, s)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Equal(t, "prompt must not be empty", statusErr.Details)
}

type sliceSource struct {
	evs []events.Event
	end error
}

func (s *sliceSource) Next() (events.Event, error) {
	if len(s.evs) == 0 {
		return events.Event{}, s.end
	}
	ev := s.evs[0]
	s.evs = s.evs[1:]
	return ev, nil
}

func TestWatchFinishesOnCleanEnd(t *testing.T) {
	m := runstate.NewMachine()
	var seen []events.Type
	state, err := Watch(context.Background(), &sliceSource{evs: storyEvents, end: io.EOF}, m,
		func(ev events.Event, _ runstate.State) { seen = append(seen, ev.Type) })

	require.NoError(t, err)
	assert.Equal(t, runstate.PhaseFinished, state.Phase)
	assert.True(t, state.IsFinished())
	assert.Equal(t, "Draft page one", state.CurrentStepDescription)
	assert.Len(t, seen, len(storyEvents))
}

func TestWatchFailsWhenStreamEndsEarly(t *testing.T) {
	state, err := Watch(context.Background(), &sliceSource{evs: storyEvents[:2], end: io.EOF}, runstate.NewMachine(), nil)

	require.NoError(t, err)
	assert.Equal(t, runstate.PhaseFailed, state.Phase)
	assert.Equal(t, runstate.ErrClosedEarly.Error(), state.Err)
}

func TestWatchFailsOnStreamError(t *testing.T) {
	drop := &stream.TruncatedError{}
	state, err := Watch(context.Background(), &sliceSource{evs: storyEvents[:1], end: drop}, runstate.NewMachine(), nil)

	assert.ErrorIs(t, err, drop)
	assert.Equal(t, runstate.PhaseFailed, state.Phase)
	assert.True(t, state.Started)
	assert.False(t, state.IsFinished())
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := Watch(ctx, &sliceSource{evs: storyEvents, end: io.EOF}, runstate.NewMachine(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, runstate.PhaseFailed, state.Phase)
	assert.True(t, strings.Contains(state.Err, "canceled"))
}
