// Package verify renders the active verification: the SDK state timeline
// for the in-flight invocation and its terminal result.
package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/client"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/theme"
)

const maxSteps = 32

// Step is one SDK state observed while a verification was in flight.
type Step struct {
	At    time.Time
	State client.LifecycleState
}

// Model tracks the most recent invocation.
type Model struct {
	InvocationID string
	TokenLen     int
	StartedAt    time.Time
	ResolvedAt   time.Time
	Steps        []Step
	Result       *client.Result
}

// New creates an empty verification model.
func New() Model {
	return Model{}
}

// Begin resets the model for a new invocation.
func (m *Model) Begin(id string, tokenLen int, now time.Time) {
	*m = Model{InvocationID: id, TokenLen: tokenLen, StartedAt: now}
}

// Pending reports whether an invocation is awaiting its result.
func (m Model) Pending() bool {
	return m.InvocationID != "" && m.Result == nil
}

// Observe records an SDK state transition while an invocation is pending.
func (m *Model) Observe(st client.LifecycleState, now time.Time) {
	if !m.Pending() {
		return
	}
	m.Steps = append(m.Steps, Step{At: now, State: st})
	if len(m.Steps) > maxSteps {
		m.Steps = m.Steps[len(m.Steps)-maxSteps:]
	}
}

// Resolve stores r if it answers the pending invocation. Results for other
// invocations are ignored and reported as false.
func (m *Model) Resolve(r client.Result, now time.Time) bool {
	if !m.Pending() || r.ID != m.InvocationID {
		return false
	}
	m.Result = &r
	m.ResolvedAt = now
	return true
}

// Fail resolves the pending invocation locally, e.g. when the request could
// not be sent.
func (m *Model) Fail(code, message string, now time.Time) {
	if !m.Pending() {
		return
	}
	m.Result = &client.Result{ID: m.InvocationID, Err: &client.ErrorPayload{Code: code, Message: message}}
	m.ResolvedAt = now
}

// ResultLabel returns the caller-facing result and the status name used to
// color it.
func ResultLabel(r client.Result) (label, status string) {
	switch {
	case r.Err != nil:
		return r.Err.Code, client.StatusFailed
	case r.Value == nil:
		return "launched (no status)", client.StatusLaunched
	default:
		return *r.Value, strings.ToLower(*r.Value)
	}
}

// View renders the panel. input is the rendered token prompt and spin the
// current spinner frame.
func (m Model) View(width int, input, spin string) string {
	innerW := width - 4
	if innerW < 30 {
		innerW = 30
	}

	title := theme.StyleHeader.Render(" VERIFICATION ")
	lines := []string{title, "", input, ""}

	if m.InvocationID == "" {
		lines = append(lines, theme.StyleDimmed.Render("  Paste a session token and press enter."))
		return panel(innerW).Render(strings.Join(lines, "\n"))
	}

	lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  %s  token: %d chars  started %s",
		m.InvocationID, m.TokenLen, m.StartedAt.Format("15:04:05"))))

	for _, s := range m.Steps {
		glyph := lipgloss.NewStyle().Foreground(theme.StateColor(s.State.State)).Render(theme.StateGlyph(s.State.State))
		offset := s.At.Sub(m.StartedAt).Round(time.Millisecond)
		lines = append(lines, fmt.Sprintf("  %s %-24s %s", glyph, s.State.String(), theme.StyleDimmed.Render("+"+offset.String())))
	}

	lines = append(lines, "")
	if m.Result == nil {
		lines = append(lines, fmt.Sprintf("  %s waiting for result...", spin))
		return panel(innerW).Render(strings.Join(lines, "\n"))
	}

	label, status := ResultLabel(*m.Result)
	res := lipgloss.NewStyle().Bold(true).Foreground(theme.StatusColor(status)).
		Render(theme.StatusGlyph(status) + " " + label)
	lines = append(lines, "  "+res+theme.StyleDimmed.Render(
		fmt.Sprintf("  in %s", m.ResolvedAt.Sub(m.StartedAt).Round(time.Millisecond))))
	if m.Result.Err != nil && m.Result.Err.Message != "" {
		lines = append(lines, "  "+m.Result.Err.Message)
	}
	return panel(innerW).Render(strings.Join(lines, "\n"))
}

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}
