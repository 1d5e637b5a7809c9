package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook/internal/config"
	"storybook/internal/events"
	"storybook/internal/runstate"
)

type fakePrompter struct {
	story   string
	pages   int
	err     error
	asked   []string
	initial int
	max     int
}

func (f *fakePrompter) Story() (string, error) {
	f.asked = append(f.asked, "story")
	return f.story, f.err
}

func (f *fakePrompter) Pages(initial, maxPages int) (int, error) {
	f.asked = append(f.asked, "pages")
	f.initial = initial
	f.max = maxPages
	return f.pages, f.err
}

func clientConfig() config.ClientConfig {
	return config.Defaults().Client
}

func TestResolveJobFromArgs(t *testing.T) {
	p := &fakePrompter{}
	cfg := clientConfig()
	cfg.Pages = 3

	job, err := resolveJob([]string{"a", "moth", "who", "loves", "lamps"}, cfg, true, true, p)
	require.NoError(t, err)
	assert.Equal(t, "a moth who loves lamps", job.Prompt)
	assert.Equal(t, 3, job.PageCount)
	assert.Equal(t, "stories", job.OutputPath)
	assert.Empty(t, p.asked)
}

func TestResolveJobPromptsWhenInteractive(t *testing.T) {
	p := &fakePrompter{story: "  a brave toaster ", pages: 4}
	job, err := resolveJob(nil, clientConfig(), false, true, p)
	require.NoError(t, err)
	assert.Equal(t, "a brave toaster", job.Prompt)
	assert.Equal(t, 4, job.PageCount)
	assert.Equal(t, []string{"story", "pages"}, p.asked)
	assert.Equal(t, 1, p.initial)
	assert.Equal(t, config.DefaultMaxPage, p.max)
}

func TestResolveJobKeepsExplicitPages(t *testing.T) {
	p := &fakePrompter{story: "a brave toaster", pages: 4}
	cfg := clientConfig()
	cfg.Pages = 2
	job, err := resolveJob(nil, cfg, true, true, p)
	require.NoError(t, err)
	assert.Equal(t, 2, job.PageCount)
	assert.Equal(t, []string{"story"}, p.asked)
}

func TestResolveJobRejects(t *testing.T) {
	_, err := resolveJob(nil, clientConfig(), false, false, &fakePrompter{})
	assert.ErrorContains(t, err, "story prompt is required")

	cfg := clientConfig()
	cfg.Pages = 6
	_, err = resolveJob([]string{"too long"}, cfg, true, false, &fakePrompter{})
	assert.ErrorContains(t, err, "between 1 and 5")

	cfg.Pages = 0
	_, err = resolveJob([]string{"too short"}, cfg, true, false, &fakePrompter{})
	assert.ErrorContains(t, err, "between 1 and 5, got 0")

	_, err = resolveJob(nil, clientConfig(), false, true, &fakePrompter{err: errors.New("^C")})
	assert.ErrorContains(t, err, "read story")
}

func TestResolveJobHonoursConfiguredMaxPages(t *testing.T) {
	cfg := clientConfig()
	cfg.MaxPages = 12
	cfg.Pages = 9
	job, err := resolveJob([]string{"a long saga"}, cfg, true, false, &fakePrompter{})
	require.NoError(t, err)
	assert.Equal(t, 9, job.PageCount)

	cfg.Pages = 13
	_, err = resolveJob([]string{"a longer saga"}, cfg, true, false, &fakePrompter{})
	assert.ErrorContains(t, err, "between 1 and 12, got 13")

	p := &fakePrompter{story: "a saga", pages: 11}
	job, err = resolveJob(nil, cfg, false, true, p)
	require.NoError(t, err)
	assert.Equal(t, 11, job.PageCount)
	assert.Equal(t, 12, p.max)
}

type sliceSource struct {
	evs []events.Event
	end error
}

func (s *sliceSource) Next() (events.Event, error) {
	if len(s.evs) == 0 {
		return events.Event{}, s.end
	}
	ev := s.evs[0]
	s.evs = s.evs[1:]
	return ev, nil
}

func TestWatchPlainPrintsRun(t *testing.T) {
	src := &sliceSource{end: io.EOF, evs: []events.Event{
		{Type: events.TypeRunStart, Start: "2024-05-01T10:00:00Z"},
		{Type: events.TypeCallStart, Tool: &events.Tool{Description: "Illustrate page one"}},
		{Type: events.TypeRunFinish, End: "2024-05-01T10:05:00Z"},
	}}
	var out bytes.Buffer

	state, err := watchPlain(context.Background(), &out, src, "run-9", runstate.NewMachine(), false)
	require.NoError(t, err)
	assert.Equal(t, runstate.PhaseFinished, state.Phase)
	assert.Contains(t, out.String(), "Run run-9 accepted")
	assert.Contains(t, out.String(), "Tool starting: Illustrate page one")
	assert.Contains(t, out.String(), "Story finished")
	assert.NoError(t, outcome(state, err))
}

func TestOutcomeExitCodes(t *testing.T) {
	failed := runstate.Fail(runstate.State{}, errors.New("idle timeout"))
	err := outcome(failed, nil)
	var exitErr *exitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitRunFailed, exitErr.code)
	assert.ErrorContains(t, err, "run failed: idle timeout")

	err = outcome(runstate.Fail(runstate.State{}, context.Canceled), context.Canceled)
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 130, exitErr.code)
}

func TestLoadClientConfigAppliesFlags(t *testing.T) {
	t.Setenv("STORYBOOK_CLIENT_SERVER_URL", "")
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"write"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--server", "http://stories.local:9000/", "--pages", "3", "--max-pages", "8", "--plain", "--ws"}))

	cfg, err := loadClientConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "http://stories.local:9000", cfg.ServerURL)
	assert.Equal(t, 3, cfg.Pages)
	assert.Equal(t, 8, cfg.MaxPages)
	assert.True(t, cfg.Plain)
	assert.True(t, cfg.WebSocket)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "storybook ")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate(strings.Repeat("ß", 59)+"物語", 60)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("ß", 59)+"物...", got)
	assert.Equal(t, "兎", truncate("兎", 60))
}
