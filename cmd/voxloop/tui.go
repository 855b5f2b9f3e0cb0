package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/mirelabs/voxloop/core"
	"github.com/mirelabs/voxloop/core/speech/capture"
	"github.com/mirelabs/voxloop/core/transcript"
)

type transcriptChangedMsg struct{}

type noticeMsg string

type clearNoticeMsg struct{}

type stateChangedMsg orchestration.State

type listeningChangedMsg bool

const noticeDuration = 4 * time.Second

type styles struct {
	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	streaming      lipgloss.Style
	notice         lipgloss.Style
	footer         lipgloss.Style
	listening      lipgloss.Style
}

func newStyles() styles {
	return styles{
		userLabel:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		assistantLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		streaming:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		notice:         lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		footer:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		listening:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

type model struct {
	orchestrator *orchestration.Orchestrator
	micAvailable bool

	input    textarea.Model
	history  viewport.Model
	progress spinner.Model
	styles   styles

	state     orchestration.State
	listening bool
	notice    string
	width     int
	height    int
	ready     bool
}

func newModel(orchestrator *orchestration.Orchestrator, micAvailable bool) model {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 0
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	progress := spinner.New()
	progress.Spinner = spinner.Dot

	return model{
		orchestrator: orchestrator,
		micAvailable: micAvailable,
		input:        input,
		history:      viewport.New(0, 0),
		progress:     progress,
		styles:       newStyles(),
		state:        orchestration.StateIdle,
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 2)
		m.history.Width = msg.Width
		m.history.Height = msg.Height - m.input.Height() - 3
		m.ready = true
		m.refreshHistory()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case transcriptChangedMsg:
		m.refreshHistory()
		return m, nil

	case stateChangedMsg:
		m.state = orchestration.State(msg)
		// Voice-submitted turns reach the model through this message, so
		// the user's line has to render here, not only on typed submits.
		m.refreshHistory()
		if m.state != orchestration.StateIdle {
			return m, m.progress.Tick
		}
		return m, nil

	case listeningChangedMsg:
		m.listening = bool(msg)
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, tea.Tick(noticeDuration, func(time.Time) tea.Msg {
			return clearNoticeMsg{}
		})

	case clearNoticeMsg:
		m.notice = ""
		return m, nil

	case spinner.TickMsg:
		if m.state == orchestration.StateIdle {
			return m, nil
		}
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlT:
		return m.toggleListening()

	case tea.KeyCtrlX:
		m.orchestrator.StopSpeaking()
		return m, nil

	case tea.KeyCtrlR:
		m.orchestrator.ReplayLast()
		return m, nil

	case tea.KeyEnter:
		// A modifier turns Enter into a line break instead of a send.
		if msg.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	err := m.orchestrator.Submit(m.input.Value())
	switch {
	case err == nil:
		m.input.Reset()
		m.refreshHistory()
	case errors.Is(err, orchestration.ErrEmptyPrompt):
		// Nothing to send; keep quiet.
	case errors.Is(err, orchestration.ErrTurnActive),
		errors.Is(err, orchestration.ErrCaptureActive):
		m.notice = "Hold on - still working on the last turn"
	default:
		m.notice = err.Error()
	}
	return m, nil
}

func (m model) toggleListening() (tea.Model, tea.Cmd) {
	if !m.micAvailable {
		m.notice = "Voice input is not available"
		return m, nil
	}

	if m.orchestrator.IsListening() {
		m.orchestrator.StopListening()
		return m, nil
	}

	if err := m.orchestrator.StartListening(); err != nil {
		switch {
		case errors.Is(err, orchestration.ErrTurnActive):
			m.notice = "Hold on - still working on the last turn"
		case errors.Is(err, capture.ErrAlreadyActive):
			// Already listening; the toggle races the session teardown.
		default:
			m.notice = "Voice recognition error. Please try again."
		}
	}
	return m, nil
}

func (m *model) refreshHistory() {
	atBottom := m.history.AtBottom()
	m.history.SetContent(m.renderTranscript())
	if atBottom {
		m.history.GotoBottom()
	}
}

func (m *model) renderTranscript() string {
	messages := m.orchestrator.Transcript()
	if len(messages) == 0 {
		return m.styles.footer.Render("Say something or start typing.")
	}

	width := m.history.Width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for i, message := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := m.styles.assistantLabel.Render("Assistant")
		if message.Role == transcript.RoleUser {
			label = m.styles.userLabel.Render("You")
		}
		b.WriteString(label)
		b.WriteString("\n")

		content := message.Content
		if message.IsStreaming && content == "" {
			content = m.styles.streaming.Render("...")
		}
		b.WriteString(wordwrap.String(content, width))
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	var footer string
	switch {
	case m.notice != "":
		footer = m.styles.notice.Render(m.notice)
	case m.listening:
		footer = m.styles.listening.Render("● listening...")
	case m.state != orchestration.StateIdle:
		footer = fmt.Sprintf("%s thinking...", m.progress.View())
	default:
		hints := "enter: send • alt+enter: newline • ctrl+r: replay • ctrl+x: hush • ctrl+c: quit"
		if m.micAvailable {
			hints = "enter: send • alt+enter: newline • ctrl+t: mic • ctrl+r: replay • ctrl+x: hush • ctrl+c: quit"
		}
		footer = m.styles.footer.Render(hints)
	}

	return fmt.Sprintf("%s\n\n%s\n%s", m.history.View(), m.input.View(), footer)
}
