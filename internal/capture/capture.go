// Package capture turns a live microphone into transcript fragments.
package capture

import (
	"context"
	"errors"

	"github.com/leonardotrapani/hyprcoach/internal/transcript"
)

var (
	// ErrUnsupported means this platform cannot capture speech at all.
	ErrUnsupported = errors.New("speech capture not supported")

	// ErrAlreadyActive is returned by Start while a session is running.
	ErrAlreadyActive = errors.New("speech capture already active")
)

type EventKind int

const (
	EventFragment EventKind = iota
	EventError
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventFragment:
		return "fragment"
	case EventError:
		return "error"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a session failure.
type ErrorKind string

const (
	NoSpeech     ErrorKind = "no-speech"
	Aborted      ErrorKind = "aborted"
	AudioCapture ErrorKind = "audio-capture"
	Network      ErrorKind = "network"
	NotAllowed   ErrorKind = "not-allowed"
	Service      ErrorKind = "service"
)

// Transient errors end the session but warrant a silent restart.
func (k ErrorKind) Transient() bool {
	return k == NoSpeech
}

// ParseErrorKind maps an unknown kind to Service.
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case NoSpeech, Aborted, AudioCapture, Network, NotAllowed, Service:
		return k
	default:
		return Service
	}
}

type Event struct {
	Kind     EventKind
	Fragment transcript.Fragment // EventFragment
	Error    ErrorKind           // EventError
	Err      error               // EventError, optional detail
}

// Adapter is a continuous speech recogniser. Every session that starts
// emits exactly one EventEnded when it stops, whatever the reason.
type Adapter interface {
	Start(ctx context.Context, locale string) error
	// Stop is idempotent.
	Stop() error
	// Active reports whether a session is running right now. An EventEnded
	// received while Active is true belongs to an earlier session.
	Active() bool
	Events() <-chan Event
	Close() error
}

// Unsupported is the adapter for platforms without a recogniser.
type Unsupported struct {
	events chan Event
}

func NewUnsupported() *Unsupported {
	return &Unsupported{events: make(chan Event)}
}

func (u *Unsupported) Start(context.Context, string) error { return ErrUnsupported }
func (u *Unsupported) Stop() error                          { return nil }
func (u *Unsupported) Active() bool                         { return false }
func (u *Unsupported) Events() <-chan Event                 { return u.events }
func (u *Unsupported) Close() error                         { return nil }
