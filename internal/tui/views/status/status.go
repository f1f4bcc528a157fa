package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/client"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	Channel   string
	SDKState  client.LifecycleState
	Health    *client.HealthReport
	Attempts  int
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{SDKState: client.LifecycleState{State: client.StateIdle}}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	sdkStr := lipgloss.NewStyle().Foreground(theme.StateColor(m.SDKState.State)).
		Render("sdk: " + m.SDKState.String())

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + sdkStr + sep + fmt.Sprintf("%d attempts", m.Attempts)
	if m.Health != nil {
		content += sep + lipgloss.NewStyle().Foreground(theme.HealthColor(m.Health.Status)).
			Render("health: "+m.Health.Status)
	}
	if m.Channel != "" {
		content += sep + theme.StyleDimmed.Render(m.Channel)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
