package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"storybook/internal/async"
	"storybook/internal/events"
	"storybook/internal/external/subprocess"
	"storybook/internal/logging"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBinary = "gptscript"
	defaultScript = "story-book.gpt"

	// eventsFD is the descriptor the child sees for the first ExtraFiles entry.
	eventsFD = 3

	maxEventLine = 4 * 1024 * 1024
)

// GPTScriptConfig configures the gptscript subprocess executor.
type GPTScriptConfig struct {
	Binary    string
	Script    string
	WorkDir   string
	ExtraArgs []string
	Env       map[string]string
}

// process is the subset of *subprocess.Subprocess the executor drives.
type process interface {
	Start(ctx context.Context) error
	PID() int
	Stdout() io.ReadCloser
	StderrTail() string
	Wait() error
}

// GPTScript runs the story script with the gptscript CLI. The CLI writes one
// JSON event per line to a dedicated pipe handed to it as descriptor 3.
type GPTScript struct {
	cfg    GPTScriptConfig
	logger logging.Logger

	newProcess func(subprocess.Config) process
}

// NewGPTScript builds the subprocess executor.
func NewGPTScript(cfg GPTScriptConfig, logger logging.Logger) *GPTScript {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = defaultBinary
	}
	if strings.TrimSpace(cfg.Script) == "" {
		cfg.Script = defaultScript
	}
	return &GPTScript{
		cfg:    cfg,
		logger: logging.OrNop(logger),
		newProcess: func(c subprocess.Config) process {
			return subprocess.New(c)
		},
	}
}

// Command returns the argv the executor runs for job.
func (g *GPTScript) Command(job Job) []string {
	args := make([]string, 0, len(g.cfg.ExtraArgs)+10)
	args = append(args, g.cfg.ExtraArgs...)
	args = append(args,
		"--disable-cache",
		fmt.Sprintf("--events-stream-to=/dev/fd/%d", eventsFD),
		g.cfg.Script,
	)
	return append(args, job.Args()...)
}

func (g *GPTScript) Start(ctx context.Context, job Job) (Run, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("events pipe: %w", err)
	}

	proc := g.newProcess(subprocess.Config{
		Command:    g.cfg.Binary,
		Args:       g.Command(job),
		Env:        g.cfg.Env,
		WorkingDir: g.cfg.WorkDir,
		ExtraFiles: []*os.File{pw},
	})
	if err := proc.Start(ctx); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go so the reader sees EOF.
	_ = pw.Close()

	g.logger.Info("started %s as pid %d", job, proc.PID())
	r := newRun()
	go g.pump(ctx, r, proc, pr)
	return r, nil
}

func (g *GPTScript) pump(ctx context.Context, r *run, proc process, events io.ReadCloser) {
	var group errgroup.Group
	group.Go(func() error {
		defer events.Close()
		return async.Run(g.logger, "gptscript.events", func() error {
			return g.relayEvents(ctx, r, events)
		})
	})
	group.Go(func() error {
		g.drainStdout(proc.Stdout())
		return nil
	})
	relayErr := group.Wait()
	waitErr := proc.Wait()
	r.finish(g.outcome(ctx, relayErr, waitErr, proc))
}

// relayEvents decodes one event per line. Lines that are not event objects are
// logged and skipped.
func (g *GPTScript) relayEvents(ctx context.Context, r *run, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			g.logger.Warn("skipping undecodable executor event: %v", err)
			continue
		}
		if err := r.send(ctx, ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read executor events: %w", err)
	}
	return nil
}

func (g *GPTScript) drainStdout(stdout io.Reader) {
	if stdout == nil {
		return
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			g.logger.Debug("stdout: %s", line)
		}
	}
}

func (g *GPTScript) outcome(ctx context.Context, relayErr, waitErr error, proc process) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: proc.StderrTail()}
		}
		return fmt.Errorf("wait executor: %w", waitErr)
	}
	return relayErr
}
