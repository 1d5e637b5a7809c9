// Package events defines the structured records a story generation run emits.
//
// An Event is a discriminated record: Type selects which of the typed fields are
// meaningful. Events decoded from the wire keep their original payload so types
// this package does not know about survive a decode/encode round trip unchanged.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the discriminator carried in every event's "type" field.
type Type string

const (
	TypeRunStart     Type = "runStart"
	TypeCallStart    Type = "callStart"
	TypeCallProgress Type = "callProgress"
	TypeCallChat     Type = "callChat"
	TypeCallFinish   Type = "callFinish"
	TypeCallSubCalls Type = "callSubCalls"
	TypeCallContinue Type = "callContinue"
	TypeCallConfirm  Type = "callConfirm"
	TypeRunFinish    Type = "runFinish"

	// TypeStreamError is written by the proxy itself when the executor faults or
	// the run is aborted; it is always the last frame of a stream.
	TypeStreamError Type = "streamError"
)

// Known reports whether t belongs to the fixed vocabulary.
func (t Type) Known() bool {
	switch t {
	case TypeRunStart, TypeCallStart, TypeCallProgress, TypeCallChat, TypeCallFinish,
		TypeCallSubCalls, TypeCallContinue, TypeCallConfirm, TypeRunFinish, TypeStreamError:
		return true
	default:
		return false
	}
}

// Tool describes the step a call is executing.
type Tool struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// SubCall is one nested call requested by a step.
type SubCall struct {
	ToolID string          `json:"toolID,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
}

// InputText returns the sub-call input as display text.
func (s SubCall) InputText() string { return rawText(s.Input) }

// Output is one chunk of output accumulated by a call.
type Output struct {
	Content  string             `json:"content"`
	SubCalls map[string]SubCall `json:"subCalls,omitempty"`
}

// Event is a single record of the executor's event feed.
type Event struct {
	Type   Type            `json:"type"`
	ID     string          `json:"id,omitempty"`
	Start  string          `json:"start,omitempty"`
	End    string          `json:"end,omitempty"`
	Tool   *Tool           `json:"tool,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output []Output        `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`

	// raw holds the payload exactly as received, compacted. When set it is what
	// MarshalJSON emits, so fields not modelled above are never dropped.
	raw json.RawMessage
}

// wire avoids recursion into Event's own Marshal/Unmarshal methods.
type wire Event

// UnmarshalJSON retains the compacted payload of any JSON object. Typed fields
// are filled when their shapes match the modelled view; otherwise the event is
// kept as an opaque record carrying only Type and the payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("event payload must be a JSON object")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var typ string
	_ = json.Unmarshal(head.Type, &typ)

	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		w = wire{}
	}
	*e = Event(w)
	e.Type = Type(typ)
	e.raw = compact.Bytes()
	return nil
}

// MarshalJSON emits the original payload when the event was decoded, otherwise
// the typed fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire(e)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Raw returns the payload as it was received, or nil for locally built events.
func (e Event) Raw() json.RawMessage { return e.raw }

// StepDescription returns the human label of the step, if the event carries one.
func (e Event) StepDescription() string {
	if e.Tool == nil {
		return ""
	}
	return strings.TrimSpace(e.Tool.Description)
}

// LastOutput returns the content of the most recent output chunk.
func (e Event) LastOutput() (string, bool) {
	if len(e.Output) == 0 {
		return "", false
	}
	return e.Output[len(e.Output)-1].Content, true
}

// InputText returns the event input as display text.
func (e Event) InputText() string { return rawText(e.Input) }

// String is a short description used in logs.
func (e Event) String() string {
	if e.ID != "" {
		return fmt.Sprintf("%s(%s)", e.Type, e.ID)
	}
	return string(e.Type)
}

// NewStreamError builds the terminal diagnostic frame written on executor faults.
func NewStreamError(err error) Event {
	msg := "stream aborted"
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: TypeStreamError, Error: msg}
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
