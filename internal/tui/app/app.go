package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/client"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/theme"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/views/debug"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/views/history"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/views/status"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/views/verify"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHistory
)

// codeDisconnected resolves an invocation locally when the channel drops
// before its result arrives; the daemon cannot reply on a new connection.
const codeDisconnected = "DISCONNECTED"

type healthMsg struct {
	report *client.HealthReport
	err    error
}

type attemptsMsg struct {
	attempts []*client.Attempt
	err      error
}

type sendFailedMsg struct {
	id  string
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	keys   KeyMap
	width  int
	height int

	input   textinput.Model
	spinner spinner.Model
	overlay Overlay

	// Sub-views.
	statusBar status.Model
	verify    verify.Model
	debug     debug.Model
	history   history.Model

	// Connection state.
	connected bool
}

// New creates the root model. Either client may be nil, in which case the
// corresponding commands are skipped.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())

	in := textinput.New()
	in.Placeholder = "session token"
	in.Prompt = "token> "
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.CharLimit = 4096
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		keys:      DefaultKeyMap(),
		input:     in,
		spinner:   sp,
		statusBar: status.New(),
		verify:    verify.New(),
		debug:     debug.New(),
		history:   history.New(),
	}
}

// Init starts the WebSocket connection.
func (m Model) Init() tea.Cmd {
	if m.ws == nil {
		return textinput.Blink
	}
	return tea.Batch(m.ws.Listen(m.ctx), textinput.Blink)
}

func (m Model) read() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

func (m Model) fetchHealth() tea.Cmd {
	if m.http == nil {
		return nil
	}
	h := m.http
	return func() tea.Msg {
		report, err := h.GetHealth()
		return healthMsg{report: report, err: err}
	}
}

func (m Model) fetchAttempts() tea.Cmd {
	if m.http == nil {
		return nil
	}
	h := m.http
	return func() tea.Msg {
		attempts, err := h.GetAttempts()
		return attemptsMsg{attempts: attempts, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = max(msg.Width-20, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.verify.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		m.debug.Log(m.now(), debug.KindChannel, "", "connected")
		return m, tea.Batch(m.read(), m.fetchHealth())

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		reason := "connection closed"
		if msg.Err != nil {
			reason = msg.Err.Error()
		}
		m.debug.Log(m.now(), debug.KindChannel, m.verify.InvocationID, "disconnected: "+reason)
		if m.verify.Pending() {
			m.verify.Fail(codeDisconnected, "connection lost before the result arrived", m.now())
		}
		if m.ws == nil {
			return m, nil
		}
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.statusBar.Channel = msg.Payload.Channel
		m.statusBar.SDKState = msg.Payload.State
		m.history.Set(msg.Payload.Attempts)
		m.statusBar.Attempts = len(m.history.Attempts)
		m.debug.Log(m.now(), debug.KindChannel, "", fmt.Sprintf("snapshot: sdk=%s attempts=%d", msg.Payload.State, len(msg.Payload.Attempts)))
		return m, m.read()

	case client.WSStateMsg:
		m.statusBar.SDKState = msg.State
		m.verify.Observe(msg.State, m.now())
		m.debug.Log(m.now(), debug.KindState, m.verify.InvocationID, msg.State.String())
		return m, m.read()

	case client.WSAttemptMsg:
		m.history.Upsert(msg.Attempt)
		m.statusBar.Attempts = len(m.history.Attempts)
		m.debug.Log(m.now(), debug.KindChannel, msg.Attempt.ID, fmt.Sprintf("attempt %s", msg.Attempt.Status))
		return m, m.read()

	case client.WSResultMsg:
		label, _ := verify.ResultLabel(msg.Result)
		if !m.verify.Resolve(msg.Result, m.now()) {
			m.debug.Log(m.now(), debug.KindChannel, msg.Result.ID, "ignored result: "+label)
			return m, m.read()
		}
		m.debug.Log(m.now(), debug.KindResult, msg.Result.ID, label)
		return m, tea.Batch(m.read(), m.fetchHealth())

	case client.WSErrorMsg:
		m.debug.Log(m.now(), debug.KindError, msg.ID, msg.Err.Error())
		if msg.ID != "" && msg.ID == m.verify.InvocationID {
			m.verify.Fail(msg.Err.Code, msg.Err.Message, m.now())
		}
		return m, m.read()

	case sendFailedMsg:
		m.debug.Log(m.now(), debug.KindError, msg.id, "send failed: "+msg.err.Error())
		if msg.id == m.verify.InvocationID {
			m.verify.Fail("SEND_FAILED", msg.err.Error(), m.now())
		}
		return m, nil

	case healthMsg:
		if msg.err != nil {
			m.debug.Log(m.now(), debug.KindHealth, "", msg.err.Error())
		}
		if msg.report != nil {
			m.statusBar.Health = msg.report
			if msg.report.SDK.LastError != "" {
				m.debug.Log(m.now(), debug.KindHealth, "", fmt.Sprintf("%s (last error: %s)", msg.report.Status, msg.report.SDK.LastError))
			}
		}
		return m, nil

	case attemptsMsg:
		if msg.err != nil {
			m.debug.Log(m.now(), debug.KindError, "", "attempts: "+msg.err.Error())
			return m, nil
		}
		m.history.Set(msg.attempts)
		m.statusBar.Attempts = len(m.history.Attempts)
		return m, nil
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.cancel()
		return m, tea.Quit
	}

	if m.overlay != OverlayNone {
		return m.handleOverlayKey(msg)
	}

	if m.input.Focused() {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.input.Blur()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			return m.submit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Edit):
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.History):
		m.overlay = OverlayHistory
		return m, m.fetchAttempts()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchHealth()
	}

	return m, nil
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
	case key.Matches(msg, m.keys.Up):
		if m.overlay == OverlayDebug {
			m.debug.Scroll(1)
		} else {
			m.history.Up()
		}
	case key.Matches(msg, m.keys.Down):
		if m.overlay == OverlayDebug {
			m.debug.Scroll(-1)
		} else {
			m.history.Down()
		}
	case key.Matches(msg, m.keys.Filter):
		if m.overlay == OverlayDebug {
			m.debug.CycleFilter()
		}
	case key.Matches(msg, m.keys.Refresh):
		if m.overlay == OverlayHistory {
			return m, m.fetchAttempts()
		}
	}
	return m, nil
}

// submit sends the typed token as a new invocation. The invocation is
// registered before the frame is written so a fast reply is never orphaned.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.verify.Pending() {
		m.debug.Log(m.now(), debug.KindError, m.verify.InvocationID, "a verification is already in flight")
		return m, nil
	}
	if !m.connected || m.ws == nil {
		m.debug.Log(m.now(), debug.KindError, "", "not connected")
		return m, nil
	}

	token := strings.TrimSpace(m.input.Value())
	m.input.Reset()

	ws := m.ws
	id := ws.NextInvocationID()
	m.verify.Begin(id, len(token), m.now())
	m.debug.Log(m.now(), debug.KindChannel, id, fmt.Sprintf("invoke (%d chars)", len(token)))

	send := func() tea.Msg {
		if err := ws.StartVerification(id, token); err != nil {
			return sendFailedMsg{id: id, err: err}
		}
		return nil
	}
	return m, tea.Batch(send, m.spinner.Tick)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if !m.connected {
		return m.renderDisconnected()
	}

	var body string
	switch m.overlay {
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	case OverlayHistory:
		body = m.history.View(m.width, m.height-4)
	default:
		body = m.verify.View(m.width, m.input.View(), m.spinner.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), body, m.helpLine())
}

func (m Model) helpLine() string {
	switch {
	case m.overlay == OverlayDebug:
		return theme.StyleDimmed.Render("  j/k:scroll  f:filter  esc:close  ctrl+c:quit")
	case m.overlay != OverlayNone:
		return theme.StyleDimmed.Render("  j/k:move  esc:close  ctrl+c:quit")
	case m.input.Focused():
		return theme.StyleDimmed.Render("  enter:start verification  esc:leave input  ctrl+c:quit")
	default:
		return theme.StyleDimmed.Render("  i:enter token  h:attempts  d:debug  r:refresh health  q:quit")
	}
}

func (m Model) renderDisconnected() string {
	box := lipgloss.NewStyle().
		Padding(1, 4).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorDanger).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).Render("DISCONNECTED"),
			"",
			theme.StyleDimmed.Render("Reconnecting to the bridge daemon..."),
		))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
