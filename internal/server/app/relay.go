package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"storybook/internal/events"
	"storybook/internal/observability"
	"storybook/internal/stream"
)

// FrameSink receives encoded frames. WriteFrame returns once the frame has
// been handed to the client (written and flushed).
type FrameSink interface {
	WriteFrame(frame []byte) error
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(frame []byte) error

func (f FrameSinkFunc) WriteFrame(frame []byte) error { return f(frame) }

// RelayResult summarises a relayed run.
type RelayResult struct {
	RunID  string
	Status string
	// Frames counts event frames delivered, including a final streamError.
	Frames int
	// Err is the fault that ended the run, if any.
	Err error
}

var heartbeatFrame = stream.EncodeComment("heartbeat")

// Relay writes every executor event to sink in emission order, interleaving
// heartbeat comments, until the executor's feed closes. A fault ends the
// stream with one streamError frame. A failed write means the client is gone:
// the executor is cancelled and its remaining events are discarded.
func (st *Stream) Relay(sink FrameSink) RelayResult {
	cfg := st.svc.cfg
	metrics := st.svc.metrics()
	metrics.IncrementActiveStreams(st.parent)
	defer metrics.DecrementActiveStreams(st.parent)
	defer st.cancel(context.Canceled)

	var heartbeat <-chan time.Time
	if cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(cfg.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	var idle *time.Timer
	var idleC <-chan time.Time
	if cfg.IdleTimeout > 0 {
		idle = time.NewTimer(cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	var (
		writeErr error
		frames   int
	)
	stopTimers := func() {
		heartbeat = nil
		idleC = nil
	}
	clientGone := func(err error) {
		writeErr = err
		st.cancel(fmt.Errorf("client write failed: %w", err))
		stopTimers()
	}

	feed := st.run.Events()
	parentDone := st.parent.Done()
	for feed != nil {
		select {
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			if idleC != nil {
				idle.Reset(cfg.IdleTimeout)
			}
			if writeErr != nil {
				continue
			}
			frame, err := stream.Encode(ev)
			if err != nil {
				st.logger.Warn("Dropping unencodable event %s: %v", ev, err)
				continue
			}
			if err := sink.WriteFrame(frame); err != nil {
				clientGone(err)
				continue
			}
			frames++
			metrics.RecordFrame(st.parent, ev.Type)
		case <-heartbeat:
			if err := sink.WriteFrame(heartbeatFrame); err != nil {
				clientGone(err)
			}
		case <-idleC:
			st.logger.Warn("No executor event for %s, aborting run", cfg.IdleTimeout)
			st.cancel(ErrIdleTimeout)
			stopTimers()
		case <-parentDone:
			parentDone = nil
			stopTimers()
		}
	}
	runErr := st.run.Wait()

	result := RelayResult{RunID: st.ID, Frames: frames}
	var report error
	switch {
	case writeErr != nil:
		result.Status = observability.RunStatusCancelled
		result.Err = writeErr
	case errors.Is(st.parent.Err(), context.Canceled):
		result.Status = observability.RunStatusCancelled
		result.Err = context.Cause(st.parent)
	case errors.Is(context.Cause(st.ctx), ErrIdleTimeout):
		result.Status = observability.RunStatusTimeout
		report = ErrIdleTimeout
	case errors.Is(st.parent.Err(), context.DeadlineExceeded):
		result.Status = observability.RunStatusTimeout
		report = ErrMaxDuration
	case runErr != nil:
		result.Status = observability.RunStatusFailed
		report = runErr
	default:
		result.Status = observability.RunStatusFinished
	}

	if report != nil {
		result.Err = report
		if err := st.writeStreamError(sink, report); err != nil {
			st.logger.Warn("Failed to write streamError frame: %v", err)
		} else {
			result.Frames++
		}
	}

	st.finish(result)
	return result
}

func (st *Stream) writeStreamError(sink FrameSink, fault error) error {
	ev := events.NewStreamError(fault)
	frame, err := stream.Encode(ev)
	if err != nil {
		return err
	}
	if err := sink.WriteFrame(frame); err != nil {
		return err
	}
	st.svc.metrics().RecordFrame(st.parent, ev.Type)
	return nil
}

func (st *Stream) finish(result RelayResult) {
	elapsed := time.Since(st.started)
	st.svc.metrics().RecordRunCompleted(st.parent, result.Status, elapsed)

	st.span.SetAttributes(observability.StatusAttrs(result.Status, result.Frames)...)
	if result.Err != nil {
		st.span.SetAttributes(observability.ErrorAttrs(result.Err)...)
		st.span.SetStatus(codes.Error, result.Err.Error())
	}
	st.span.End()

	switch result.Status {
	case observability.RunStatusFinished:
		st.logger.Info("Run finished: %d frames in %s", result.Frames, elapsed.Round(time.Millisecond))
	case observability.RunStatusCancelled:
		st.logger.Info("Run cancelled after %d frames: %v", result.Frames, result.Err)
	default:
		st.logger.Warn("Run %s after %d frames: %v", result.Status, result.Frames, result.Err)
	}
}
