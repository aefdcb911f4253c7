package notify

import (
	"os/exec"

	"github.com/rs/zerolog/log"
)

const appName = "Hyprcoach"

// maxReplyPreview keeps desktop popups short; the full reply is in the history.
const maxReplyPreview = 160

type Notifier interface {
	ListeningChanged(on bool)
	Reply(text string)
	Error(msg string)
	Notify(title, message string)
}

// New returns the notifier for the configured type. Disabled or unknown
// types get Nop.
func New(enabled bool, kind string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

var execCommand = exec.Command

type Desktop struct{}

func (d Desktop) ListeningChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	d.send(appName+": "+state+" Listening", "")
}

func (d Desktop) Reply(text string) {
	d.send(appName, preview(text))
}

func (Desktop) Error(msg string) {
	cmd := execCommand("notify-send", "-a", appName, "-u", "critical", appName+" Error", msg)
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Msg("Notify: failed to send error notification")
	}
}

func (d Desktop) Notify(title, message string) {
	d.send(title, message)
}

func (Desktop) send(title, body string) {
	args := []string{"-a", appName, title}
	if body != "" {
		args = append(args, body)
	}
	if err := execCommand("notify-send", args...).Run(); err != nil {
		log.Warn().Err(err).Msg("Notify: failed to send notification")
	}
}

// Log writes notifications to the process log instead of the desktop.
type Log struct{}

func (Log) ListeningChanged(on bool) {
	if on {
		log.Info().Msg(appName + ": Listening Started")
		return
	}
	log.Info().Msg(appName + ": Listening Stopped")
}

func (Log) Reply(text string) {
	log.Info().Str("reply", preview(text)).Msg(appName + ": Reply")
}

func (Log) Error(msg string) {
	log.Error().Str("error", msg).Msg(appName + " Error")
}

func (Log) Notify(title, message string) {
	log.Info().Str("message", message).Msg(title)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) ListeningChanged(on bool)     {}
func (Nop) Reply(text string)            {}
func (Nop) Error(msg string)             {}
func (Nop) Notify(title, message string) {}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= maxReplyPreview {
		return text
	}
	return string(r[:maxReplyPreview-1]) + "…"
}
