package client

import (
	"context"
	"errors"
	"io"

	"storybook/internal/events"
	"storybook/internal/runstate"
)

// EventSource yields events until io.EOF or a failure.
type EventSource interface {
	Next() (events.Event, error)
}

// Watch feeds every event of src into m and calls onUpdate with the event and
// the resulting state. A clean end of stream closes the machine; any other
// error fails it. The final state is returned together with the stream error,
// which is nil on a clean end.
func Watch(ctx context.Context, src EventSource, m *runstate.Machine, onUpdate func(events.Event, runstate.State)) (runstate.State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return m.Fail(err), err
		}
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return m.Close(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return m.Fail(err), err
		}
		state := m.Apply(ev)
		if onUpdate != nil {
			onUpdate(ev, state)
		}
	}
}
