package executor

import (
	"context"
	"sync"

	"storybook/internal/events"
)

// run is the shared Run implementation: a producer goroutine sends on ch,
// then finish records the outcome.
type run struct {
	ch   chan events.Event
	done chan struct{}

	once sync.Once
	err  error
}

func newRun() *run {
	return &run{
		ch:   make(chan events.Event),
		done: make(chan struct{}),
	}
}

func (r *run) Events() <-chan events.Event { return r.ch }

func (r *run) Wait() error {
	<-r.done
	return r.err
}

// send delivers ev unless ctx ends first.
func (r *run) send(ctx context.Context, ev events.Event) error {
	select {
	case r.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *run) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.ch)
		close(r.done)
	})
}
