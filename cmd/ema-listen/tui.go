package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-listen/core/events"
	"github.com/koscakluka/ema-listen/core/speechtotext/streaming"
	"github.com/muesli/reflow/wordwrap"
)

var barStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFDF5")).
	Background(lipgloss.Color("#25A065")).
	Padding(0, 1)

var (
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

type eventMsg struct{ event events.Event }

type streamEndedMsg struct{ err error }

type model struct {
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	requestID string
	finals    []string
	partial   string
	errors    []string

	stopping bool
	ended    bool
	stop     func()
}

func newModel(requestID string, stop func()) model {
	return model{
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		requestID: requestID,
		stop:      stop,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc":
			// Stop the audio and let the server flush what it has.
			m.stopping = true
			m.stop()
		case "ctrl+c":
			m.stop()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.transcriptView())

	case eventMsg:
		m.apply(msg.event)
		m.viewport.SetContent(m.transcriptView())
		m.viewport.GotoBottom()

	case streamEndedMsg:
		m.ended = true
		if msg.err != nil {
			m.errors = append(m.errors, msg.err.Error())
		}
		m.viewport.SetContent(m.transcriptView())
		return m, tea.Quit

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) apply(ev events.Event) {
	switch e := ev.(type) {
	case events.InterimResult:
		m.partial = e.Transcript
	case events.FinalResult:
		if e.Transcript != "" {
			m.finals = append(m.finals, e.Transcript)
		}
		m.partial = ""
	case events.TurnEvent:
		switch e.Type {
		case events.EndOfTurn:
			if e.Transcript != "" {
				m.finals = append(m.finals, e.Transcript)
			}
			m.partial = ""
		case events.StartOfTurn, events.TurnResumed:
		default:
			m.partial = e.Transcript
		}
		if e.Warning != nil {
			m.errors = append(m.errors, e.Warning.Error())
		}
	case events.Metadata:
		if e.RequestID != "" {
			m.requestID = e.RequestID
		}
	case events.ServerError:
		m.errors = append(m.errors, e.Error())
	}
}

func (m model) View() string {
	if !m.ready {
		return "\n  " + m.spinner.View() + " Listening..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := "Live Transcript"
	if m.requestID != "" {
		title += " " + m.requestID
	}
	rendered := barStyle.Render(title)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(rendered)))
	return lipgloss.JoinHorizontal(lipgloss.Center, rendered, line)
}

func (m model) footerView() string {
	status := m.spinner.View() + " listening, q to stop"
	switch {
	case m.ended:
		status = "stream ended"
	case m.stopping:
		status = m.spinner.View() + " finishing"
	}
	rendered := barStyle.Render(status)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(rendered)))
	return lipgloss.JoinHorizontal(lipgloss.Center, line, rendered)
}

func (m model) transcriptView() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}

	var content strings.Builder
	for _, final := range m.finals {
		content.WriteString(wordwrap.String(final, width))
		content.WriteString("\n")
	}
	if m.partial != "" {
		content.WriteString(partialStyle.Render(wordwrap.String(m.partial, width)))
		content.WriteString("\n")
	}
	for _, msg := range m.errors {
		content.WriteString(errorStyle.Render(wordwrap.String(msg, width)))
		content.WriteString("\n")
	}
	return content.String()
}

// runTUI renders the session live until the event stream ends. Pressing q
// calls stop, which ends the audio source.
func runTUI(ctx context.Context, stop func(), session *streaming.Session, frames <-chan []byte, keepAlive time.Duration, record func(events.Event)) error {
	program := tea.NewProgram(newModel(session.RequestID(), stop), tea.WithContext(ctx))

	streamErr := make(chan error, 1)
	go func() {
		err := stream(ctx, session, frames, keepAlive, func(ev events.Event) error {
			record(ev)
			program.Send(eventMsg{event: ev})
			return nil
		})
		program.Send(streamEndedMsg{err: err})
		streamErr <- err
	}()

	if _, err := program.Run(); err != nil {
		stop()
		return fmt.Errorf("failed to run transcript view: %w", err)
	}
	return <-streamErr
}
