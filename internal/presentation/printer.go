// Package presentation shows a run's progress in the terminal, either as
// plain appended lines or as an interactive bubbletea view.
package presentation

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"storybook/internal/events"
	"storybook/internal/presentation/formatter"
	"storybook/internal/runstate"
)

// CurrentToolLabel prefixes the current step line.
const CurrentToolLabel = "-- [Current Tool] --"

// WaitingBanner is shown until the run reports that it started.
const WaitingBanner = "I'm waiting for you to Generate a story above..."

// Printer writes run progress as plain lines, for pipes and non-TTY output.
type Printer struct {
	out      io.Writer
	lastStep string

	step    *color.Color
	event   *color.Color
	success *color.Color
	failure *color.Color
}

// NewPrinter writes to out, colouring lines when colorEnabled is set.
func NewPrinter(out io.Writer, colorEnabled bool) *Printer {
	p := &Printer{
		out:     out,
		step:    color.New(color.FgCyan, color.Bold),
		event:   color.New(color.FgWhite),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.step, p.event, p.success, p.failure} {
		if colorEnabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Start announces an accepted run.
func (p *Printer) Start(runID string) {
	if runID == "" {
		fmt.Fprintln(p.out, "Run accepted")
		return
	}
	fmt.Fprintf(p.out, "Run %s accepted\n", runID)
}

// Update prints the current step when it changes and the event's log text.
func (p *Printer) Update(ev events.Event, st runstate.State) {
	if st.CurrentStepDescription != "" && st.CurrentStepDescription != p.lastStep {
		p.lastStep = st.CurrentStepDescription
		p.step.Fprintln(p.out, CurrentToolLabel+" "+p.lastStep)
	}
	if text, ok := formatter.FormatEvent(ev); ok {
		p.event.Fprintln(p.out, text)
	}
}

// Finish prints the outcome of the run.
func (p *Printer) Finish(st runstate.State) {
	switch st.Phase {
	case runstate.PhaseFinished:
		p.success.Fprintf(p.out, "Story finished (%d log entries)\n", len(st.EventLog))
	case runstate.PhaseFailed:
		p.failure.Fprintf(p.out, "Run failed: %s\n", st.Err)
	default:
		fmt.Fprintf(p.out, "Run ended: %s\n", st.Phase)
	}
}
