package bridge

import (
	"context"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/transcript"
	"github.com/rs/zerolog/log"
)

// Capture is the capture.Adapter backed by the bridge client's recogniser.
type Capture struct {
	s *Server
}

var _ capture.Adapter = (*Capture)(nil)

func (c *Capture) Start(ctx context.Context, locale string) error {
	s := c.s
	s.mu.Lock()
	switch {
	case s.client == nil:
		s.mu.Unlock()
		return ErrNotConnected
	case !s.client.capture:
		s.mu.Unlock()
		return capture.ErrUnsupported
	case s.active:
		s.mu.Unlock()
		return capture.ErrAlreadyActive
	}
	s.session++
	s.active = true
	session, cl := s.session, s.client
	s.mu.Unlock()

	if err := cl.send(message{Type: typeCaptureStart, Session: session, Locale: locale}); err != nil {
		s.endSession(session)
		return err
	}
	log.Debug().Uint64("session", session).Str("locale", locale).Msg("Bridge: capture started")
	return nil
}

// Stop ends the session at once. The client's own capture_ended for it is
// then ignored.
func (c *Capture) Stop() error {
	s := c.s
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	session, cl := s.session, s.client
	s.mu.Unlock()

	if cl != nil {
		if err := cl.send(message{Type: typeCaptureStop, Session: session}); err != nil {
			log.Debug().Err(err).Msg("Bridge: failed to send capture_stop")
		}
	}
	go s.emit(capture.Event{Kind: capture.EventEnded})
	return nil
}

func (c *Capture) Active() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.active
}

func (c *Capture) Events() <-chan capture.Event { return c.s.events }

func (c *Capture) Close() error { return c.Stop() }

func fragment(m message) transcript.Fragment {
	return transcript.Fragment{Text: m.Text, Final: m.Final}
}
