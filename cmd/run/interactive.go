package main

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	enginebridge "github.com/wippyai/enginebridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// keep the screen bounded
const historyLimit = 20

type entry struct {
	source string
	result enginebridge.Result
}

type interactiveModel struct {
	ctx     context.Context
	sess    session
	snap    enginebridge.Snapshot
	input   textinput.Model
	spinner spinner.Model
	history []entry
	running bool
}

type stateMsg enginebridge.Snapshot

type initDoneMsg struct{ err error }

type resultMsg entry

func newInteractiveModel(ctx context.Context, sess session) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "SELECT 1"
	if strings.Contains(strings.ToLower(sess.Name()), "python") {
		ti.Placeholder = "print('hello')"
	}
	ti.Width = 60
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return &interactiveModel{
		ctx:     ctx,
		sess:    sess,
		snap:    sess.State(),
		input:   ti,
		spinner: sp,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, m.initialize)
}

func (m *interactiveModel) initialize() tea.Msg {
	return initDoneMsg{err: m.sess.Initialize(m.ctx)}
}

func (m *interactiveModel) execute(src string) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{source: src, result: m.sess.Execute(m.ctx, src)}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+r":
			if m.snap.State == enginebridge.Failed {
				return m, m.initialize
			}

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.running || m.snap.State != enginebridge.Ready {
				return m, nil
			}
			m.running = true
			m.input.SetValue("")
			return m, m.execute(src)
		}

	case stateMsg:
		m.snap = enginebridge.Snapshot(msg)
		return m, nil

	case initDoneMsg:
		m.snap = m.sess.State()
		return m, nil

	case resultMsg:
		m.running = false
		m.history = append(m.history, entry(msg))
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		m.snap = m.sess.State()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.sess.Name()))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render(m.snap.State.String()))
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(sourceStyle.Render("> " + e.source))
		b.WriteString("\n")
		if e.result.Success() {
			b.WriteString(resultStyle.Render(renderResult(e.result)))
		} else {
			b.WriteString(errorStyle.Render(renderResult(e.result)))
		}
		b.WriteString("\n\n")
	}

	switch m.snap.State {
	case enginebridge.Uninitialized, enginebridge.Initializing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing ")
		b.WriteString(m.sess.Name())
		b.WriteString("...\n\n")
		b.WriteString(helpStyle.Render("esc quit"))

	case enginebridge.Failed:
		b.WriteString(errorStyle.Render("Error: " + m.snap.Reason()))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("ctrl+r retry • esc quit"))

	case enginebridge.Ready:
		if m.running {
			b.WriteString(m.spinner.View())
			b.WriteString(" Running...\n")
		} else {
			b.WriteString(m.input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter run • esc quit"))
	}

	return b.String()
}

func runInteractive(ctx context.Context, sess session) error {
	p := tea.NewProgram(newInteractiveModel(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := sess.Subscribe(func(s enginebridge.Snapshot) {
		p.Send(stateMsg(s))
	})
	defer unsubscribe()

	_, err := p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
