package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"storybook/internal/async"
	"storybook/internal/client"
	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/executor"
	"storybook/internal/logging"
	"storybook/internal/presentation"
	"storybook/internal/runstate"
)

// exitRunFailed is the exit code of a run that was accepted but did not finish.
const exitRunFailed = 2

// writeFlagKeys maps write flags to config keys.
var writeFlagKeys = map[string]string{
	"server":    "client.server_url",
	"pages":     "client.pages",
	"max-pages": "client.max_pages",
	"path":      "client.path",
	"plain":     "client.plain",
	"record":    "client.record",
	"ws":        "client.websocket",
}

func newWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write [story]",
		Short: "Generate a story and follow the run",
		Long: "Submit a story prompt to the storybook server and watch the run until it finishes.\n" +
			"Without a prompt argument the story and page count are asked for interactively.",
		RunE: runWrite,
	}
	flags := cmd.Flags()
	flags.String("server", "", "Server base URL (default http://localhost:8080)")
	flags.IntP("pages", "p", 0, "Number of pages (default 1)")
	flags.Int("max-pages", 0, "Largest page count accepted before submitting (default 5)")
	flags.String("path", "", "Output directory the story is written to")
	flags.Bool("plain", false, "Print plain lines instead of the interactive view")
	flags.String("record", "", "Save the raw event stream to a file for the replay executor")
	flags.Bool("ws", false, "Use the websocket transport")
	return cmd
}

func runWrite(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig(cmd)
	if err != nil {
		return err
	}
	interactive := isTTY()
	job, err := resolveJob(args, cfg, cmd.Flags().Changed("pages"), interactive, promptuiPrompter{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c := client.New(cfg.ServerURL, client.WithLogger(logging.NewComponentLogger("Client")))
	var opts []client.SubmitOption
	if cfg.Record != "" {
		f, err := os.Create(cfg.Record)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer f.Close()
		opts = append(opts, client.WithRecorder(f))
	}

	submit := c.Submit
	if cfg.WebSocket {
		submit = c.SubmitWebSocket
	}
	s, err := submit(ctx, job, opts...)
	if err != nil {
		return fmt.Errorf("submit story: %w", err)
	}
	defer s.Close()

	machine := runstate.NewMachine()
	var state runstate.State
	if cfg.Plain || !interactive {
		state, err = watchPlain(ctx, cmd.OutOrStdout(), s, s.RunID, machine, !color.NoColor && interactive)
	} else {
		state, err = watchInteractive(ctx, cancel, s, job, machine)
	}
	if cfg.Record != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), gray("Recorded stream to "+cfg.Record))
	}
	return outcome(state, err)
}

// loadClientConfig resolves client settings from the config file, the
// environment and the flags set explicitly on cmd.
func loadClientConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	overrides := config.Overrides{}
	for name, key := range writeFlagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	opts := []config.Option{config.WithOverrides(overrides)}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, _, err := config.Load(opts...)
	if err != nil {
		return config.ClientConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.Client, nil
}

// prompter asks for the job fields the command line left out.
type prompter interface {
	Story() (string, error)
	Pages(initial, maxPages int) (int, error)
}

// resolveJob builds the job from args and cfg, prompting for the story and
// the page count when running interactively.
func resolveJob(args []string, cfg config.ClientConfig, pagesSet, interactive bool, p prompter) (executor.Job, error) {
	job := executor.Job{
		Prompt:     strings.TrimSpace(strings.Join(args, " ")),
		PageCount:  cfg.Pages,
		OutputPath: cfg.Path,
	}
	if job.Prompt == "" {
		if !interactive {
			return executor.Job{}, errors.New("a story prompt is required when not running in a terminal")
		}
		story, err := p.Story()
		if err != nil {
			return executor.Job{}, fmt.Errorf("read story: %w", err)
		}
		job.Prompt = strings.TrimSpace(story)
		if !pagesSet {
			pages, err := p.Pages(cfg.Pages, cfg.MaxPages)
			if err != nil {
				return executor.Job{}, fmt.Errorf("read page count: %w", err)
			}
			job.PageCount = pages
		}
	}
	if job.PageCount < 1 || job.PageCount > cfg.MaxPages {
		return executor.Job{}, fmt.Errorf("pages must be between 1 and %d, got %d", cfg.MaxPages, job.PageCount)
	}
	return job, nil
}

func watchPlain(ctx context.Context, out io.Writer, src client.EventSource, runID string, m *runstate.Machine, colorEnabled bool) (runstate.State, error) {
	printer := presentation.NewPrinter(out, colorEnabled)
	printer.Start(runID)
	state, err := client.Watch(ctx, src, m, printer.Update)
	printer.Finish(state)
	return state, err
}

func watchInteractive(ctx context.Context, cancel context.CancelFunc, src client.EventSource, job executor.Job, m *runstate.Machine) (runstate.State, error) {
	program := tea.NewProgram(presentation.NewModel("Storybook: "+strconv.Quote(truncate(job.Prompt, 60)), cancel))

	done := make(chan struct{})
	var watchErr error
	async.Go(logging.NewComponentLogger("Watch"), "watch", func() {
		defer close(done)
		var state runstate.State
		state, watchErr = client.Watch(ctx, src, m, func(ev events.Event, st runstate.State) {
			program.Send(presentation.EventMsg{Event: ev, State: st})
		})
		program.Send(presentation.DoneMsg{State: state, Err: watchErr})
	})

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return m.Snapshot(), fmt.Errorf("terminal view: %w", err)
	}
	// The view also quits on user request; stop the stream and let Watch settle.
	cancel()
	<-done
	return m.Snapshot(), watchErr
}

func outcome(state runstate.State, err error) error {
	if state.Phase == runstate.PhaseFinished {
		return nil
	}
	if err == nil {
		err = errors.New(state.Err)
	}
	if errors.Is(err, context.Canceled) {
		return &exitCodeError{code: 130, err: errors.New("run cancelled")}
	}
	return &exitCodeError{code: exitRunFailed, err: fmt.Errorf("run failed: %w", err)}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
