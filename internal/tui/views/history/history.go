// Package history renders the recent verification attempts overlay.
package history

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/client"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/theme"
)

const maxAttempts = 50

// Model holds recent attempts, newest first.
type Model struct {
	Attempts []client.Attempt
	Cursor   int
}

// New creates an empty history model.
func New() Model {
	return Model{}
}

// Set replaces the attempt list, e.g. from a snapshot or /api/attempts.
func (m *Model) Set(attempts []*client.Attempt) {
	m.Attempts = m.Attempts[:0]
	for _, a := range attempts {
		if a != nil {
			m.Attempts = append(m.Attempts, *a)
		}
	}
	if len(m.Attempts) > maxAttempts {
		m.Attempts = m.Attempts[:maxAttempts]
	}
	m.clampCursor()
}

// Upsert replaces the attempt with the same ID in place, or prepends a new one.
func (m *Model) Upsert(a client.Attempt) {
	for i := range m.Attempts {
		if m.Attempts[i].ID == a.ID {
			m.Attempts[i] = a
			return
		}
	}
	m.Attempts = append([]client.Attempt{a}, m.Attempts...)
	if len(m.Attempts) > maxAttempts {
		m.Attempts = m.Attempts[:maxAttempts]
	}
}

// Up moves the cursor towards newer attempts.
func (m *Model) Up() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

// Down moves the cursor towards older attempts.
func (m *Model) Down() {
	m.Cursor++
	m.clampCursor()
}

// Selected returns the attempt under the cursor.
func (m Model) Selected() (client.Attempt, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Attempts) {
		return client.Attempt{}, false
	}
	return m.Attempts[m.Cursor], true
}

func (m *Model) clampCursor() {
	if m.Cursor >= len(m.Attempts) {
		m.Cursor = len(m.Attempts) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

// View renders the attempt table with a detail line for the selection.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 40 {
		innerW = 40
	}
	visible := height - 10
	if visible < 3 {
		visible = 3
	}

	title := theme.StyleHeader.Render(" ATTEMPTS ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:select  r:refresh  esc:close  %d attempts", len(m.Attempts)))

	if len(m.Attempts) == 0 {
		body := theme.StyleDimmed.Render("  No verification attempts yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	start := 0
	if m.Cursor >= visible {
		start = m.Cursor - visible + 1
	}
	end := min(start+visible, len(m.Attempts))

	var rows []string
	for i := start; i < end; i++ {
		a := m.Attempts[i]
		status := lipgloss.NewStyle().Foreground(theme.StatusColor(a.Status)).Width(12).
			Render(theme.StatusGlyph(a.Status) + " " + a.Status)
		outcome := a.Result
		if a.Code != "" {
			outcome = a.Code
		}
		row := fmt.Sprintf("%s %s %-18s %s",
			theme.StyleDimmed.Render(a.StartedAt.Format("15:04:05")),
			status, outcome, theme.StyleDimmed.Render(shortID(a.CorrelationID)))
		if i == m.Cursor {
			row = theme.StyleSelected.Render("▸ ") + row
		} else {
			row = "  " + row
		}
		rows = append(rows, row)
	}

	content := []string{title, strings.Join(rows, "\n"), ""}
	if sel, ok := m.Selected(); ok {
		content = append(content, detail(sel))
	}
	content = append(content, help)
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, content...))
}

func detail(a client.Attempt) string {
	parts := []string{
		"phase: " + a.Phase,
		fmt.Sprintf("token: %d chars", a.TokenLen),
	}
	if a.TokenFingerprint != "" {
		parts = append(parts, "fp: "+a.TokenFingerprint)
	}
	if a.ResolvedBy != "" {
		parts = append(parts, "by: "+a.ResolvedBy)
	}
	if a.CompletedAt != nil {
		parts = append(parts, "took: "+a.CompletedAt.Sub(a.StartedAt).String())
	}
	line := strings.Join(parts, "  ")
	if a.Message != "" {
		line += "\n" + a.Message
	}
	return theme.StyleDimmed.Render(line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}
