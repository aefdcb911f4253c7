// Package bridge lets a remote platform, such as a browser tab, provide
// speech recognition and synthesis over a websocket.
package bridge

import "github.com/leonardotrapani/hyprcoach/internal/playback"

// Path is where the websocket endpoint is mounted.
const Path = "/bridge"

// client -> server
const (
	typeHello         = "hello"
	typeFragment      = "fragment"
	typeCaptureError  = "capture_error"
	typeCaptureEnded  = "capture_ended"
	typeSpeechStarted = "speech_started"
	typeSpeechEnded   = "speech_ended"
	typeSpeechError   = "speech_error"
	typeVoices        = "voices"
)

// server -> client
const (
	typeCaptureStart = "capture_start"
	typeCaptureStop  = "capture_stop"
	typeSpeak        = "speak"
	typeSpeechCancel = "speech_cancel"
)

// message is the single JSON envelope used in both directions. Capture
// messages carry the session number from capture_start so late messages of
// an old session can be told apart.
type message struct {
	Type    string `json:"type"`
	Session uint64 `json:"session,omitempty"`

	// hello
	Capture *bool `json:"capture,omitempty"`
	Speech  *bool `json:"speech,omitempty"`

	// fragment
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// capture_error
	Kind string `json:"kind,omitempty"`

	// capture_start, speak
	Locale string `json:"locale,omitempty"`
	ID     string `json:"id,omitempty"`
	Voice  string `json:"voice,omitempty"`
	Lang   string `json:"lang,omitempty"`
	Rate   int    `json:"rate,omitempty"`

	// speech_error
	Error string `json:"error,omitempty"`

	// voices
	Voices []playback.Voice `json:"voices,omitempty"`
}
