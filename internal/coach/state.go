// Package coach runs the turn-taking loop between the learner's voice, the
// completion service and speech playback.
package coach

import (
	"errors"
	"fmt"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/silence"
)

type State string

const (
	Idle               State = "idle"
	Listening          State = "listening"
	AwaitingCompletion State = "awaiting_completion"
	Speaking           State = "speaking"
)

var (
	// ErrBusy rejects a submission while a reply is still being generated.
	ErrBusy = errors.New("a reply is still being generated")

	// ErrEmptyUtterance means there is nothing buffered to send.
	ErrEmptyUtterance = errors.New("nothing to send")

	// ErrClosed is returned by commands once the coordinator has stopped.
	ErrClosed = errors.New("coach closed")
)

// CaptureError reports a capture session that failed in a way the learner
// needs to know about. Always-on mode is switched off when it happens.
type CaptureError struct {
	Kind capture.ErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech capture failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("speech capture failed (%s)", e.Kind)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Options are the settings that can change while the coordinator runs.
type Options struct {
	Locale          string
	AutoSpeak       bool
	SilenceTimeout  time.Duration
	RestartDelay    time.Duration
	HistoryWindow   int
	ReplaceLastWord bool
}

const DefaultRestartDelay = 100 * time.Millisecond

func DefaultOptions() Options {
	return Options{
		AutoSpeak:      true,
		SilenceTimeout: silence.DefaultTimeout,
		RestartDelay:   DefaultRestartDelay,
		HistoryWindow:  conversation.DefaultWindow,
	}
}

func (o Options) withDefaults() Options {
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = silence.DefaultTimeout
	}
	if o.RestartDelay < 0 {
		o.RestartDelay = DefaultRestartDelay
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = conversation.DefaultWindow
	}
	return o
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	State         State  `json:"state"`
	AlwaysOn      bool   `json:"always_on"`
	CaptureActive bool   `json:"capture_active"`
	AutoSpeak     bool   `json:"auto_speak"`
	Display       string `json:"display,omitempty"`
	Turns         int    `json:"turns"`
}
