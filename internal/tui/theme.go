package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for hyprcoach output
var (
	ColorPrimary   = lipgloss.Color("#10B981") // Emerald - main accent
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan - the learner's turns

	ColorSuccess = lipgloss.Color("#22C55E")
	ColorError   = lipgloss.Color("#EF4444")
	ColorWarning = lipgloss.Color("#F59E0B")

	ColorText   = lipgloss.Color("#F8FAFC")
	ColorMuted  = lipgloss.Color("#94A3B8")
	ColorSubtle = lipgloss.Color("#64748B")
)
