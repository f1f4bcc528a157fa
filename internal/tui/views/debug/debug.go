// Package debug renders the bridge event log overlay: channel traffic, SDK
// lifecycle transitions, results and health reports, each tagged with the
// invocation it belongs to.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/theme"
)

// logCapacity bounds the number of retained entries; older ones are dropped.
const logCapacity = 200

// Kind classifies a log entry.
type Kind int

const (
	KindChannel Kind = iota
	KindState
	KindResult
	KindError
	KindHealth

	kindCount
)

var kindLabels = [kindCount]string{"chan", "sdk", "res", "err", "hlth"}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "?"
	}
	return kindLabels[k]
}

func (k Kind) color() lipgloss.Color {
	switch k {
	case KindChannel:
		return theme.ColorLoading
	case KindState:
		return theme.ColorCreatingSession
	case KindResult:
		return theme.ColorReady
	case KindError:
		return theme.ColorErrored
	case KindHealth:
		return theme.ColorWarning
	default:
		return theme.ColorDimmed
	}
}

// Entry is one logged bridge event. Ref names the invocation or attempt the
// event concerns and is empty for channel-wide events.
type Entry struct {
	At      time.Time
	Kind    Kind
	Ref     string
	Message string
}

// Model holds the log and the overlay's view state.
type Model struct {
	Entries []Entry

	// Offset counts visible entries hidden below the viewport.
	Offset int

	// filter is the kind shown alone; filtered reports whether it applies.
	filter   Kind
	filtered bool
}

// New creates an empty log.
func New() Model {
	return Model{}
}

// Log records an event. Scrolling returns to the newest entry.
func (m *Model) Log(at time.Time, kind Kind, ref, message string) {
	m.Entries = append(m.Entries, Entry{At: at, Kind: kind, Ref: ref, Message: message})
	if len(m.Entries) > logCapacity {
		m.Entries = m.Entries[len(m.Entries)-logCapacity:]
	}
	m.Offset = 0
}

// Last returns the newest entry, if any.
func (m Model) Last() (Entry, bool) {
	if len(m.Entries) == 0 {
		return Entry{}, false
	}
	return m.Entries[len(m.Entries)-1], true
}

// CycleFilter steps through showing every kind, then each kind alone.
func (m *Model) CycleFilter() {
	switch {
	case !m.filtered:
		m.filtered, m.filter = true, 0
	case m.filter+1 < kindCount:
		m.filter++
	default:
		m.filtered = false
	}
	m.Offset = 0
}

// FilterLabel names the active filter.
func (m Model) FilterLabel() string {
	if !m.filtered {
		return "all"
	}
	return m.filter.String()
}

// Visible returns the entries that pass the active filter, oldest first.
func (m Model) Visible() []Entry {
	if !m.filtered {
		return m.Entries
	}
	var out []Entry
	for _, e := range m.Entries {
		if e.Kind == m.filter {
			out = append(out, e)
		}
	}
	return out
}

// Scroll moves the viewport by delta entries; positive values reveal older
// entries. The offset stays within the visible entries.
func (m *Model) Scroll(delta int) {
	m.Offset = min(max(m.Offset+delta, 0), max(len(m.Visible())-1, 0))
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)

	visible := m.Visible()
	title := theme.StyleHeader.Render(" BRIDGE LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  f:filter [%s]  esc:close  %d/%d entries",
		m.FilterLabel(), len(visible), len(m.Entries)))

	if len(visible) == 0 {
		empty := "  No events recorded yet."
		if m.filtered {
			empty = fmt.Sprintf("  No %s events recorded.", m.filter)
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", theme.StyleDimmed.Render(empty), "", help)
		return panelStyle(innerW).Render(content)
	}

	end := max(len(visible)-m.Offset, 0)
	start := max(end-rows, 0)

	lines := make([]string, 0, end-start)
	for _, e := range visible[start:end] {
		lines = append(lines, renderEntry(e, innerW))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
	}
	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help)
	return panelStyle(innerW).Render(content)
}

func renderEntry(e Entry, width int) string {
	ts := theme.StyleDimmed.Render(e.At.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(e.Kind.color()).Width(4).Render(e.Kind.String())

	prefix := ""
	if e.Ref != "" {
		prefix = "[" + e.Ref + "] "
	}
	// 12 columns of timestamp, 4 of kind and two separators.
	room := width - 18 - len(prefix)
	msg := []rune(e.Message)
	if room > 3 && len(msg) > room {
		msg = append(msg[:room-3], []rune("...")...)
	}
	ref := ""
	if prefix != "" {
		ref = theme.StyleDimmed.Render(prefix)
	}
	return fmt.Sprintf("%s %s %s%s", ts, kind, ref, string(msg))
}
