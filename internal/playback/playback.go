// Package playback speaks assistant replies aloud.
package playback

import (
	"context"
	"errors"
)

// ErrUnsupported means no speech synthesizer is available.
var ErrUnsupported = errors.New("speech synthesis not supported")

type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

type Utterance struct {
	ID    string
	Text  string
	Voice Voice
	Rate  int // words per minute, 0 = synthesizer default
}

// Synthesizer turns text into audible speech.
type Synthesizer interface {
	// Voices may return an empty list until the synthesizer has loaded them.
	Voices(ctx context.Context) ([]Voice, error)
	// Speak blocks until the utterance finishes, fails or ctx is canceled.
	// onStart is called once audio begins.
	Speak(ctx context.Context, u Utterance, onStart func()) error
	Close() error
}

// VoiceNotifier is implemented by synthesizers whose voice list can change
// after startup.
type VoiceNotifier interface {
	VoicesChanged() <-chan struct{}
}

// Unsupported is the synthesizer for platforms without speech output.
type Unsupported struct{}

func NewUnsupported() *Unsupported { return &Unsupported{} }

func (Unsupported) Voices(context.Context) ([]Voice, error) { return nil, ErrUnsupported }

func (Unsupported) Speak(context.Context, Utterance, func()) error { return ErrUnsupported }

func (Unsupported) Close() error { return nil }
