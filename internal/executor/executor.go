// Package executor launches the long-running generation job behind one
// streaming request and exposes its ordered event feed.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"storybook/internal/events"
)

// Job is one story generation request. It is immutable once started.
type Job struct {
	Prompt     string `json:"prompt"`
	PageCount  int    `json:"pageCount"`
	OutputPath string `json:"outputPath"`
}

// Args renders the job as command-line arguments for the story script.
// Values are passed as separate argv entries and never through a shell.
func (j Job) Args() []string {
	return []string{
		"--story", j.Prompt,
		"--pages", strconv.Itoa(j.PageCount),
		"--path", j.OutputPath,
	}
}

func (j Job) String() string {
	prompt := strings.TrimSpace(j.Prompt)
	if runes := []rune(prompt); len(runes) > 40 {
		prompt = string(runes[:40]) + "..."
	}
	return fmt.Sprintf("job(pages=%d path=%q prompt=%q)", j.PageCount, j.OutputPath, prompt)
}

// Executor starts jobs. Start must return promptly: it reports whether the job
// could be launched, not whether it succeeded.
type Executor interface {
	Start(ctx context.Context, job Job) (Run, error)
}

// Run is one launched job.
//
// Events delivers the job's events in emission order and is closed when the
// job ends. Wait blocks until the job has ended and all of its resources are
// released, then reports the fault, if any. Cancelling the context passed to
// Start aborts the job; the Events channel is still closed afterwards.
type Run interface {
	Events() <-chan events.Event
	Wait() error
}

// ExitError reports a job process that exited unsuccessfully.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("executor exited with status %d", e.Code)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, job Job) (Run, error)

func (f Func) Start(ctx context.Context, job Job) (Run, error) { return f(ctx, job) }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
