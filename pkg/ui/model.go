package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

const helpLine = "enter send • esc cancel • ctrl+n new session • pgup/pgdn scroll • ctrl+c quit"

// Model shows the active session's log above an input line.
type Model struct {
	client  *chatclient.Client
	backend *Backend

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	state  chatclient.StreamState
	status string
	isErr  bool
}

func NewModel(client *chatclient.Client, backend *Backend) Model {
	ti := textinput.New()
	ti.Placeholder = "Message"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	m := Model{
		client:   client,
		backend:  backend,
		viewport: viewport.New(80, 20),
		input:    ti,
		spinner:  sp,
		status:   helpLine,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = ev.Width
		m.viewport.Height = max(ev.Height-4, 1)
		m.input.Width = max(ev.Width-4, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(ev)

	case NotificationMsg:
		m.state = ev.State
		switch ev.Kind {
		case chatclient.NotifyError:
			m.setStatus(ev.Error, true)
		case chatclient.NotifySession:
			m.setStatus("session "+ev.SessionID, false)
		case chatclient.NotifyDelta, chatclient.NotifyState:
		}
		m.refresh()
		return m, nil

	case ExchangeFinishedMsg:
		if ev.Result != nil {
			m.state = ev.Result.State
		}
		if ev.Err != nil {
			m.setStatus(ev.Err.Error(), true)
		} else if ev.Result != nil && ev.Result.State == chatclient.StateCancelled {
			m.setStatus("cancelled", false)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c":
		m.backend.Interrupt()
		return m, tea.Quit
	case "esc":
		if m.backend.IsRunning() {
			m.backend.Interrupt()
		}
		return m, nil
	case "ctrl+n":
		if m.backend.IsRunning() {
			m.setStatus("wait for the reply or press esc first", true)
			return m, nil
		}
		if err := m.client.NewSession(); err != nil {
			m.setStatus(err.Error(), true)
		} else {
			m.setStatus(helpLine, false)
		}
		m.refresh()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		cmd, err := m.backend.Start(text)
		if err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.input.Reset()
		m.setStatus(helpLine, false)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	return m, cmd
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.isErr = isErr
}

// refresh re-renders the log into the viewport and follows the tail.
func (m *Model) refresh() {
	var b strings.Builder
	for _, msg := range m.client.Log.Messages() {
		b.WriteString(label(msg.Role))
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func label(r chatclient.Role) string {
	if r == chatclient.RoleUser {
		return userStyle.Render("you")
	}
	return assistantStyle.Render("assistant")
}

func (m Model) View() string {
	title := "new session"
	if active := m.client.Selector.Active(); !active.IsPending() {
		title = active.Title
		if title == "" {
			title = active.ID
		}
	}
	header := headerStyle.Render(title) + " " + statusStyle.Render(m.state.String())
	if m.state.IsActive() {
		header += " " + m.spinner.View()
	}
	status := statusStyle.Render(m.status)
	if m.isErr {
		status = errorStyle.Render(m.status)
	}
	return header + "\n" + m.viewport.View() + "\n" + status + "\n" + m.input.View()
}
