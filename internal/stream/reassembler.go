package stream

import (
	"bytes"
	"errors"
	"fmt"

	"storybook/internal/events"
)

// TruncatedError reports a connection that closed in the middle of a frame.
type TruncatedError struct {
	Remainder []byte
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("stream: connection closed with %d bytes of an incomplete frame", len(e.Remainder))
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithDiagnostics installs a hook called for every malformed frame skipped.
func WithDiagnostics(fn func(*FrameError)) ReassemblerOption {
	return func(r *Reassembler) { r.onMalformed = fn }
}

// Reassembler rebuilds frames from byte chunks of any size. A frame may span
// many Feed calls and one Feed call may complete many frames. It is not safe
// for concurrent use.
type Reassembler struct {
	buf         []byte
	onMalformed func(*FrameError)
	skipped     int
	finished    bool
}

// NewReassembler returns an empty Reassembler.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed appends p and returns every event completed by it, in arrival order.
// Malformed frames are skipped and reported to the diagnostics hook.
func (r *Reassembler) Feed(p []byte) []events.Event {
	if r.finished {
		return nil
	}
	r.buf = append(r.buf, p...)

	var out []events.Event
	for {
		ev, rest, err := TryDecode(r.buf)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		r.buf = rest
		var frameErr *FrameError
		if errors.As(err, &frameErr) {
			r.skipped++
			if r.onMalformed != nil {
				r.onMalformed(frameErr)
			}
			continue
		}
		out = append(out, ev)
	}
	r.buf = dropComments(r.buf)
	r.compact()
	return out
}

// Finish marks the end of the connection. A leftover partial frame is
// discarded and reported as a *TruncatedError.
func (r *Reassembler) Finish() error {
	if r.finished {
		return nil
	}
	r.finished = true
	rest := r.buf
	r.buf = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	return &TruncatedError{Remainder: rest}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Skipped returns the number of malformed frames dropped so far.
func (r *Reassembler) Skipped() int { return r.skipped }

// compact moves the remainder to the front of the buffer once consumed frames
// dominate it, so a long stream does not pin every byte it has seen.
func (r *Reassembler) compact() {
	if len(r.buf) == 0 {
		r.buf = r.buf[:0:0]
		return
	}
	if cap(r.buf) > 4096 && len(r.buf) < cap(r.buf)/4 {
		r.buf = append([]byte(nil), r.buf...)
	}
}
