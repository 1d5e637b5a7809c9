// Package runstate folds a run's ordered events into the single record the
// presentation layer renders.
package runstate

import (
	"errors"
	"fmt"

	"storybook/internal/events"
)

// Phase is the lifecycle position of a run as seen by the client.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseFinished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool { return p == PhaseFinished || p == PhaseFailed }

// ErrClosedEarly is the failure recorded when the stream ends cleanly but
// before the run reported that it finished.
var ErrClosedEarly = errors.New("stream closed before the run finished")

// State is the client's view of one run.
//
// Finished is nil until the run starts, then false, then true; it never goes
// back. EventLog only grows.
type State struct {
	Phase                  Phase
	Started                bool
	Finished               *bool
	CurrentStepDescription string
	LatestProgressText     string
	EventLog               []events.Event
	Err                    string
}

// IsFinished reports whether the run has finished (false when unknown).
func (s State) IsFinished() bool { return s.Finished != nil && *s.Finished }

// FinishedKnown reports whether the finished flag has left the unknown state.
func (s State) FinishedKnown() bool { return s.Finished != nil }

// Clone returns a copy that shares no mutable storage with s.
func (s State) Clone() State {
	out := s
	if s.Finished != nil {
		v := *s.Finished
		out.Finished = &v
	}
	out.EventLog = append([]events.Event(nil), s.EventLog...)
	return out
}

func (s State) String() string {
	return fmt.Sprintf("%s step=%q log=%d", s.Phase, s.CurrentStepDescription, len(s.EventLog))
}

func boolPtr(v bool) *bool { return &v }
