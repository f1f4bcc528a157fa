// Package theme provides the Lip Gloss color palette and reusable styles
// for the bridge TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// SDK lifecycle colors.
var (
	ColorIdle            = lipgloss.Color("#4b5563")
	ColorLoading         = lipgloss.Color("#2563eb")
	ColorCreatingSession = lipgloss.Color("#7c3aed")
	ColorReady           = lipgloss.Color("#16a34a")
	ColorErrored         = lipgloss.Color("#dc2626")
	ColorDefault         = lipgloss.Color("#9ca3af")
)

// Attempt status colors.
var (
	ColorApproved = lipgloss.Color("#22c55e")
	ColorDeclined = lipgloss.Color("#dc2626")
	ColorInReview = lipgloss.Color("#d97706")
	ColorLaunched = lipgloss.Color("#06b6d4")
	ColorPending  = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the Lip Gloss color for an SDK lifecycle state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "idle":
		return ColorIdle
	case "loading":
		return ColorLoading
	case "creating_session":
		return ColorCreatingSession
	case "ready":
		return ColorReady
	case "error":
		return ColorErrored
	default:
		return ColorDefault
	}
}

// StatusColor returns the Lip Gloss color for an attempt status name.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "approved":
		return ColorApproved
	case "declined", "failed", "rejected":
		return ColorDeclined
	case "in_review":
		return ColorInReview
	case "launched", "completed":
		return ColorLaunched
	case "pending":
		return ColorPending
	case "cancelled":
		return ColorDimmed
	default:
		return ColorDefault
	}
}

// HealthColor returns the color for a health status name.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "healthy":
		return ColorHealthy
	case "degraded":
		return ColorWarning
	case "failed":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)

// StateGlyph returns a Unicode glyph representing an SDK lifecycle state.
func StateGlyph(state string) string {
	switch state {
	case "idle":
		return "○"
	case "loading":
		return "◌"
	case "creating_session":
		return "◎"
	case "ready":
		return "●"
	case "error":
		return "✗"
	default:
		return "·"
	}
}

// StatusGlyph returns a Unicode glyph for an attempt status.
func StatusGlyph(status string) string {
	switch status {
	case "approved":
		return "✓"
	case "declined", "failed", "rejected":
		return "✗"
	case "in_review":
		return "…"
	case "launched", "completed":
		return "↗"
	case "cancelled":
		return "−"
	case "pending":
		return "◌"
	default:
		return "·"
	}
}
