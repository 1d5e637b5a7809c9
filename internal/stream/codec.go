// Package stream implements the framed text encoding used to relay run events
// over a single long-lived HTTP response, and the client side reassembly of
// those frames from arbitrarily chunked reads.
//
// A frame is the tag "event: ", one compact JSON event, and a blank line:
//
//	event: {"type":"runStart","start":"..."}\n\n
//
// Frames whose first byte is ':' are comments (heartbeats) and carry no event.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"storybook/internal/events"
)

const (
	// Tag prefixes every event frame.
	Tag = "event: "
	// Delimiter terminates every frame. Compact JSON never contains it.
	Delimiter = "\n\n"
)

var (
	tagBytes       = []byte(Tag)
	delimiterBytes = []byte(Delimiter)
)

// ErrIncomplete reports that the buffer does not yet hold a complete frame.
var ErrIncomplete = errors.New("stream: incomplete frame")

// FrameError describes a complete frame whose payload could not be decoded.
type FrameError struct {
	Frame []byte
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("stream: malformed frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Encode renders ev as one frame.
func Encode(ev events.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	frame := make([]byte, 0, len(Tag)+len(payload)+len(Delimiter))
	frame = append(frame, tagBytes...)
	frame = append(frame, payload...)
	frame = append(frame, delimiterBytes...)
	return frame, nil
}

// EncodeComment renders a comment frame, used as a heartbeat.
func EncodeComment(text string) []byte {
	text = string(bytes.ReplaceAll([]byte(text), []byte("\n"), []byte(" ")))
	return []byte(": " + text + Delimiter)
}

// TryDecode extracts the first event frame from buf.
//
// It returns ErrIncomplete with rest == buf when no complete event frame is
// present. A malformed frame yields a *FrameError together with the bytes that
// follow it, so callers can skip it and keep decoding. Comment frames are
// consumed silently. buf is never modified.
func TryDecode(buf []byte) (ev events.Event, rest []byte, err error) {
	rest = buf
	for {
		idx := bytes.Index(rest, delimiterBytes)
		if idx < 0 {
			return events.Event{}, buf, ErrIncomplete
		}
		frame := rest[:idx]
		rest = rest[idx+len(delimiterBytes):]

		trimmed := bytes.TrimLeft(frame, "\r\n")
		if len(trimmed) == 0 || trimmed[0] == ':' {
			continue
		}
		ev, err := decodeFrame(trimmed)
		if err != nil {
			return events.Event{}, rest, &FrameError{Frame: frame, Err: err}
		}
		return ev, rest, nil
	}
}

func decodeFrame(frame []byte) (events.Event, error) {
	payload, ok := bytes.CutPrefix(frame, tagBytes)
	if !ok {
		return events.Event{}, fmt.Errorf("missing %q tag", Tag)
	}
	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

// dropComments discards complete comment frames at the head of buf.
func dropComments(buf []byte) []byte {
	for {
		idx := bytes.Index(buf, delimiterBytes)
		if idx < 0 {
			return buf
		}
		trimmed := bytes.TrimLeft(buf[:idx], "\r\n")
		if len(trimmed) > 0 && trimmed[0] != ':' {
			return buf
		}
		buf = buf[idx+len(delimiterBytes):]
	}
}
