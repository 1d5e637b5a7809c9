package stream

import (
	"errors"
	"io"
	"iter"

	"storybook/internal/events"
)

const defaultReadSize = 4096

// Reader turns a byte stream into a finite, non-restartable sequence of events.
type Reader struct {
	src     io.Reader
	ra      *Reassembler
	chunk   []byte
	pending []events.Event
	err     error
}

// NewReader reads frames from src. Options are passed to the underlying
// Reassembler.
func NewReader(src io.Reader, opts ...ReassemblerOption) *Reader {
	return &Reader{
		src:   src,
		ra:    NewReassembler(opts...),
		chunk: make([]byte, defaultReadSize),
	}
}

// Next returns the next event. It returns io.EOF once the source closed on a
// frame boundary, a *TruncatedError when it closed mid-frame, or the read error
// of the source. After the first error every call returns the same error.
func (r *Reader) Next() (events.Event, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return events.Event{}, r.err
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.ra.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.err = r.closeWith(err)
		}
	}
	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}

// All yields events until the stream ends. A clean end yields nothing extra;
// any other end yields a final zero event with the error.
func (r *Reader) All() iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(events.Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Skipped returns the number of malformed frames dropped so far.
func (r *Reader) Skipped() int { return r.ra.Skipped() }

func (r *Reader) closeWith(readErr error) error {
	truncErr := r.ra.Finish()
	if !errors.Is(readErr, io.EOF) {
		return readErr
	}
	if truncErr != nil {
		return truncErr
	}
	return io.EOF
}
