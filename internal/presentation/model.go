package presentation

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"storybook/internal/events"
	"storybook/internal/presentation/formatter"
	"storybook/internal/runstate"
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	styleGray    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBanner  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	styleTool    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleSuccess = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleLog     = lipgloss.NewStyle().Background(lipgloss.Color("236")).Foreground(lipgloss.Color("252")).Padding(0, 1)
)

// EventMsg delivers one event and the state after applying it.
type EventMsg struct {
	Event events.Event
	State runstate.State
}

// DoneMsg ends the view with the final state.
type DoneMsg struct {
	State runstate.State
	Err   error
}

// Model is the interactive view of one run.
type Model struct {
	title    string
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	style    string
	cancel   func()

	state   runstate.State
	lines   []string
	done    bool
	err     error
	summary string
	width   int
}

// NewModel builds the view. cancel is called when the user quits early.
func NewModel(title string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleTool

	return Model{
		title:    title,
		spinner:  s,
		viewport: viewport.New(80, 16),
		style:    "dark",
		cancel:   cancel,
		width:    80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(5, msg.Height-8)
		m.renderer = nil
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.state = msg.State
		if text, ok := formatter.FormatEvent(msg.Event); ok {
			m.lines = append(m.lines, text)
			m.refresh()
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.state = msg.State
		m.err = msg.Err
		m.summary = m.renderSummary()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render(m.title))
	b.WriteString("\n\n")

	if !m.state.FinishedKnown() && !m.done {
		b.WriteString(styleBanner.Render(WaitingBanner))
		b.WriteString("\n")
	}
	if len(m.lines) > 0 {
		b.WriteString(styleLog.Render(m.viewport.View()))
		b.WriteString("\n")
	}
	b.WriteString(styleGray.Render(">>"))
	b.WriteString("\n")

	if step := m.state.CurrentStepDescription; step != "" {
		prefix := m.spinner.View() + " "
		if m.done {
			prefix = ""
		}
		b.WriteString(prefix + styleTool.Render(CurrentToolLabel) + " " + step + "\n")
	}
	if text := m.state.LatestProgressText; text != "" && !m.done {
		b.WriteString(styleGray.Render(lastLine(text)) + "\n")
	}

	if m.done {
		b.WriteString("\n")
		switch {
		case m.state.Phase == runstate.PhaseFinished:
			b.WriteString(styleSuccess.Render("Story finished") + "\n")
			b.WriteString(m.summary)
		default:
			b.WriteString(styleError.Render("Run failed: "+m.state.Err) + "\n")
		}
	}
	return b.String()
}

// State returns the last state the view received.
func (m Model) State() runstate.State { return m.state }

func (m *Model) renderSummary() string {
	content := finalOutput(m.state.EventLog)
	if content == "" {
		return ""
	}
	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(max(20, m.width-4)),
		)
		if err != nil {
			return content + "\n"
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

// finalOutput returns the content of the last callFinish in log.
func finalOutput(log []events.Event) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Type != events.TypeCallFinish {
			continue
		}
		parts := make([]string, 0, len(log[i].Output))
		for _, out := range log[i].Output {
			if c := strings.TrimSpace(out.Content); c != "" {
				parts = append(parts, c)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

func lastLine(text string) string {
	text = strings.TrimRight(text, "\n")
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	const limit = 120
	if runes := []rune(text); len(runes) > limit {
		return fmt.Sprintf("%s...", string(runes[:limit]))
	}
	return text
}
