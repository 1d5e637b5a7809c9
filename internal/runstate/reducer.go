package runstate

import (
	"errors"
	"sync"

	"storybook/internal/events"
)

// Reduce applies one event to s and returns the resulting state. It never
// mutates s; the returned EventLog may share a prefix with s.EventLog but an
// append never writes into storage s can observe.
func Reduce(s State, ev events.Event) State {
	if s.Phase.Terminal() {
		return s
	}
	next := s
	if next.Phase == PhaseNotStarted {
		next.Phase = PhaseRunning
	}

	switch ev.Type {
	case events.TypeRunStart:
		next.Started = true
		if next.Finished == nil {
			next.Finished = boolPtr(false)
		}
	case events.TypeCallStart:
		if desc := ev.StepDescription(); desc != "" {
			next.CurrentStepDescription = desc
		}
	case events.TypeCallProgress:
		if last, ok := ev.LastOutput(); ok {
			next.LatestProgressText = last
		}
		if desc := ev.StepDescription(); desc != "" {
			next.CurrentStepDescription = desc
		}
	case events.TypeRunFinish:
		next.Finished = boolPtr(true)
		next.Phase = PhaseFinished
	case events.TypeStreamError:
		next.EventLog = appendEvent(s.EventLog, ev)
		next.Phase = PhaseFailed
		next.Err = ev.Error
		if next.Err == "" {
			next.Err = "run aborted by server"
		}
	default:
		// callChat, callFinish, the sub-call family and any unknown type.
		next.EventLog = appendEvent(s.EventLog, ev)
	}
	return next
}

// Fail moves s to PhaseFailed, keeping everything observed so far.
func Fail(s State, err error) State {
	if s.Phase.Terminal() {
		return s
	}
	next := s
	next.Phase = PhaseFailed
	if err == nil {
		err = errors.New("run failed")
	}
	next.Err = err.Error()
	return next
}

// Close records a clean end of stream; a run that never finished is failed.
func Close(s State) State {
	if s.Phase.Terminal() {
		return s
	}
	return Fail(s, ErrClosedEarly)
}

func appendEvent(log []events.Event, ev events.Event) []events.Event {
	out := make([]events.Event, len(log), len(log)+1)
	copy(out, log)
	return append(out, ev)
}

// Machine owns the State of the run attached to one connection. Every
// mutation goes through Reduce, Fail or Close. It is safe for concurrent use,
// so a renderer may read snapshots while the stream goroutine applies events.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a machine in PhaseNotStarted.
func NewMachine() *Machine { return &Machine{} }

// Apply folds ev into the state and returns a snapshot of the result.
func (m *Machine) Apply(ev events.Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Reduce(m.state, ev)
	return m.state.Clone()
}

// Fail records a decode-level or transport fault.
func (m *Machine) Fail(err error) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Fail(m.state, err)
	return m.state.Clone()
}

// Close records the end of the stream.
func (m *Machine) Close() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Close(m.state)
	return m.state.Clone()
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}
