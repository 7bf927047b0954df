package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/narration"
)

type playKeyMap struct {
	Pause  key.Binding
	Resume key.Binding
	Skip   key.Binding
	Stop   key.Binding
	Speed  key.Binding
	Quit   key.Binding
}

func (k playKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Resume, k.Skip, k.Stop, k.Speed, k.Quit}
}

func (k playKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var playKeys = playKeyMap{
	Pause: key.NewBinding(
		key.WithKeys("p", "P"),
		key.WithHelp("p", "pause"),
	),
	Resume: key.NewBinding(
		key.WithKeys("r", "R"),
		key.WithHelp("r", "resume"),
	),
	Skip: key.NewBinding(
		key.WithKeys("n", "N", "right"),
		key.WithHelp("n", "next"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s", "S"),
		key.WithHelp("s", "stop"),
	),
	Speed: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "speed"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "Q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Messages delivered to the play program.
type (
	stateMsg         autoplay.State
	navigateMsg      int
	statusMessageMsg string
	controlDoneMsg   struct{ err error }
	narrationDoneMsg struct{ err error }
)

// playModel is the interactive view of a narration run.
type playModel struct {
	ctrl    controller
	start   func() error
	deck    narration.Deck
	keys    playKeyMap
	help    help.Model
	spinner spinner.Model
	width   int

	state    autoplay.State
	seen     bool
	slide    int
	message  string
	quitting bool
	done     bool
	err      error
}

func newPlayModel(c controller, start func() error, deck narration.Deck, width int) playModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = slideStyle

	h := help.New()
	h.Width = width

	return playModel{
		ctrl:    c,
		start:   start,
		deck:    deck,
		keys:    playKeys,
		help:    h,
		spinner: sp,
		width:   width,
		slide:   -1,
		state:   autoplay.State{CurrentSlide: -1, CurrentSegment: -1, PlaybackRate: 1},
	}
}

func (m playModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runCmd())
}

// runCmd narrates the deck; the program quits when it returns.
func (m playModel) runCmd() tea.Cmd {
	start := m.start
	return func() tea.Msg {
		return narrationDoneMsg{err: start()}
	}
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case stateMsg:
		s := autoplay.State(msg)
		if m.seen && s.Seq <= m.state.Seq {
			return m, nil
		}
		m.state, m.seen = s, true

	case navigateMsg:
		m.slide = int(msg)

	case statusMessageMsg:
		m.message = string(msg)

	case controlDoneMsg:
		if msg.err != nil {
			m.message = msg.err.Error()
		}

	case narrationDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKeyPress turns a key into an orchestrator call. Calls run as
// commands because they notify state listeners, which send back into the
// program.
func (m playModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.ctrl

	switch {
	case key.Matches(msg, m.keys.Pause):
		m.message = ""
		return m, controlCmd(c.Pause)

	case key.Matches(msg, m.keys.Resume):
		m.message = ""
		return m, controlCmd(c.Resume)

	case key.Matches(msg, m.keys.Skip):
		m.message = ""
		return m, controlCmd(c.Skip)

	case key.Matches(msg, m.keys.Stop):
		m.quitting = true
		return m, func() tea.Msg {
			c.Stop()
			return controlDoneMsg{}
		}

	case key.Matches(msg, m.keys.Speed):
		return m, func() tea.Msg {
			c.CycleSpeed()
			return controlDoneMsg{}
		}

	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, func() tea.Msg {
			c.Stop()
			return tea.QuitMsg{}
		}
	}

	return m, nil
}

func controlCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		return controlDoneMsg{err: fn()}
	}
}

func (m playModel) View() string {
	var b strings.Builder

	if m.slide >= 0 {
		b.WriteString(slideStyle.Render(slideHeading(m.deck, m.slide)) + "\n")
	}
	if m.state.IsActive() {
		if text, ok := segmentText(m.deck, m.state.CurrentSlide, m.state.CurrentSegment); ok {
			b.WriteString(segmentStyle.MaxWidth(m.width).Render("  › "+text) + "\n")
		}
	}
	b.WriteString(m.statusLine() + "\n")

	if m.state.Error != "" {
		b.WriteString(errorStyle.Render(m.state.Error) + "\n")
	}
	if m.message != "" {
		b.WriteString(faintStyle.Render(m.message) + "\n")
	}
	if !m.done && !m.quitting {
		b.WriteString("\n" + m.help.View(m.keys) + "\n")
	}
	return b.String()
}

func (m playModel) statusLine() string {
	s := m.state
	rate := autoplay.FormatRate(s.PlaybackRate)

	switch s.Status {
	case autoplay.StatusGenerating:
		return fmt.Sprintf("%s generating audio %d/%d", m.spinner.View(), s.Progress.Done, s.Progress.Total)
	case autoplay.StatusPlaying:
		return faintStyle.Render("▶ playing" + m.sentence() + " · " + rate)
	case autoplay.StatusPaused:
		return faintStyle.Render("⏸ paused" + m.sentence() + " · " + rate)
	default:
		return faintStyle.Render("■ stopped · " + rate)
	}
}

func (m playModel) sentence() string {
	s := m.state
	if s.CurrentSlide < 0 || s.CurrentSlide >= len(m.deck) || s.CurrentSegment < 0 {
		return ""
	}
	return fmt.Sprintf(" · sentence %d/%d", s.CurrentSegment+1, len(m.deck[s.CurrentSlide].Segments))
}

// programView forwards orchestrator callbacks into a running program.
type programView struct {
	p *tea.Program
}

func (v *programView) Navigate(slide int) {
	if v.p != nil {
		v.p.Send(navigateMsg(slide))
	}
}

func (v *programView) Update(s autoplay.State) {
	if v.p != nil {
		v.p.Send(stateMsg(s))
	}
}

func (v *programView) Message(msg string) {
	if v.p != nil {
		v.p.Send(statusMessageMsg(msg))
	}
}
