package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Header style for titles and section headers
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Subtle style for hints and timestamps
	StyleSubtle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Italic(true)

	StyleHighlight = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	// Role labels in the conversation history
	StyleUser = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	StyleCoach = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
)

const logoASCII = `
 _                                      _     
| |__  _   _ _ __  _ __ ___ ___   __ _ | |__  
| '_ \| | | | '_ \| '__/ __/ _ \ / _' || '_ \ 
| | | | |_| | |_) | | | (_| (_) | (_| || | | |
|_| |_|\__, | .__/|_|  \___\___/ \__,_||_| |_|
       |___/|_|                               `

// Logo returns the hyprcoach ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}

func LogoLines() []string {
	return strings.Split(strings.Trim(logoASCII, "\n"), "\n")
}
