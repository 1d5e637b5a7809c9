package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storybook/internal/events"
	"storybook/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecording(t *testing.T, tail string, evs ...events.Event) string {
	t.Helper()
	var data []byte
	for _, ev := range evs {
		frame, err := stream.Encode(ev)
		require.NoError(t, err)
		data = append(data, frame...)
	}
	data = append(data, stream.EncodeComment("heartbeat")...)
	data = append(data, tail...)
	path := filepath.Join(t.TempDir(), "run.frames")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReplayPlaysRecording(t *testing.T) {
	path := writeRecording(t, "",
		events.Event{Type: events.TypeRunStart, Start: "t0"},
		events.Event{Type: events.TypeCallStart, Tool: &events.Tool{Description: "draft page 1"}},
		events.Event{Type: events.TypeRunFinish, End: "t1"},
	)

	run, err := NewReplay(ReplayConfig{Path: path, Delay: time.Millisecond}, nil).Start(context.Background(), testJob)
	require.NoError(t, err)

	got := collect(t, run)
	require.NoError(t, run.Wait())
	assert.Equal(t, []events.Type{events.TypeRunStart, events.TypeCallStart, events.TypeRunFinish}, eventTypes(got))
}

func TestReplayTruncatedRecordingFails(t *testing.T) {
	path := writeRecording(t, `event: {"type":"callProg`, events.Event{Type: events.TypeRunStart})

	run, err := NewReplay(ReplayConfig{Path: path}, nil).Start(context.Background(), testJob)
	require.NoError(t, err)

	assert.Len(t, collect(t, run), 1)
	var truncErr *stream.TruncatedError
	assert.True(t, errors.As(run.Wait(), &truncErr))
}

func TestReplayMissingFileFailsToStart(t *testing.T) {
	_, err := NewReplay(ReplayConfig{Path: filepath.Join(t.TempDir(), "nope")}, nil).Start(context.Background(), testJob)
	assert.Error(t, err)
}

func TestReplayStopsOnCancel(t *testing.T) {
	path := writeRecording(t, "",
		events.Event{Type: events.TypeRunStart},
		events.Event{Type: events.TypeRunFinish},
	)
	ctx, cancel := context.WithCancel(context.Background())
	run, err := NewReplay(ReplayConfig{Path: path, Delay: time.Hour}, nil).Start(ctx, testJob)
	require.NoError(t, err)

	cancel()
	assert.Empty(t, collect(t, run))
	assert.ErrorIs(t, run.Wait(), context.Canceled)
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var exec Executor = Func(func(ctx context.Context, job Job) (Run, error) {
		called = true
		assert.Equal(t, testJob, job)
		return nil, errors.New("no capacity")
	})
	_, err := exec.Start(context.Background(), testJob)
	assert.EqualError(t, err, "no capacity")
	assert.True(t, called)
}
