package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
)

const defaultWrapWidth = 80

// RenderHistory formats the conversation for the terminal, oldest first.
func RenderHistory(turns []conversation.Turn, width int) string {
	if len(turns) == 0 {
		return StyleMuted.Render("No conversation yet. Say something or run `hyprcoach say <text>`.") + "\n"
	}
	if width <= 0 {
		width = defaultWrapWidth
	}
	body := lipgloss.NewStyle().Width(width).PaddingLeft(2)

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(turnHeader(t))
		b.WriteString("\n")
		text := body.Render(t.Text)
		if t.Error {
			text = StyleError.Render(text)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

func turnHeader(t conversation.Turn) string {
	label := StyleUser.Render("You")
	if t.Role == conversation.Assistant {
		label = StyleCoach.Render("Coach")
	}
	if t.CreatedAt.IsZero() {
		return label
	}
	return label + " " + StyleSubtle.Render(formatTime(t.CreatedAt, time.Now()))
}

// formatTime shows only the clock for today's turns.
func formatTime(t, now time.Time) string {
	t = t.Local()
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Format("15:04")
	}
	return t.Format("Jan 2 15:04")
}

// RenderStatus turns a daemon status line's key=value fields into a short
// styled summary.
func RenderStatus(fields map[string]string) string {
	state := fields["state"]
	style := StyleMuted
	switch state {
	case "listening":
		style = StyleSuccess
	case "awaiting_completion":
		style = StyleWarning
	case "speaking":
		style = StyleUser
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("State:"), style.Render(strings.ReplaceAll(state, "_", " ")))
	fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Always-on:"), yesNo(fields["always_on"]))
	fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Microphone:"), yesNo(fields["capture"]))
	fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Auto-speak:"), yesNo(fields["auto_speak"]))
	fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render("Turns:"), fields["turns"])
	return b.String()
}

// RenderVoices lists voices, marking the ones matching locale.
func RenderVoices(voices []playback.Voice, locale string) string {
	if len(voices) == 0 {
		return StyleMuted.Render("No voices available.") + "\n"
	}
	var b strings.Builder
	for _, v := range voices {
		line := fmt.Sprintf("%-32s %s", v.Name, v.Lang)
		if v.Default {
			line += " (default)"
		}
		if best, ok := playback.SelectVoice(voices, locale, nil); ok && best == v {
			line = StyleHighlight.Render(line + " *")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func yesNo(v string) string {
	if v == "true" {
		return StyleSuccess.Render("on")
	}
	return StyleMuted.Render("off")
}
