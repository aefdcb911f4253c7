package bridge

import (
	"context"
	"errors"

	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/rs/zerolog/log"
)

// Speech is the playback.Synthesizer backed by the bridge client.
type Speech struct {
	s *Server
}

var (
	_ playback.Synthesizer   = (*Speech)(nil)
	_ playback.VoiceNotifier = (*Speech)(nil)
)

// Voices returns the list last announced by the client, which is empty
// until one connects.
func (sp *Speech) Voices(ctx context.Context) ([]playback.Voice, error) {
	if _, err := sp.s.speechClient(); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return nil, nil
		}
		return nil, err
	}
	sp.s.mu.Lock()
	defer sp.s.mu.Unlock()
	return append([]playback.Voice(nil), sp.s.voices...), nil
}

func (sp *Speech) Speak(ctx context.Context, u playback.Utterance, onStart func()) error {
	s := sp.s
	cl, err := s.speechClient()
	if err != nil {
		return err
	}

	pu := &utterance{onStart: onStart, done: make(chan error, 1)}
	s.mu.Lock()
	s.pending[u.ID] = pu
	s.mu.Unlock()

	err = cl.send(message{
		Type:  typeSpeak,
		ID:    u.ID,
		Text:  u.Text,
		Voice: u.Voice.Name,
		Lang:  u.Voice.Lang,
		Rate:  u.Rate,
	})
	if err != nil {
		s.finish(u.ID, nil)
		return err
	}

	select {
	case err := <-pu.done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, u.ID)
		s.mu.Unlock()
		if err := cl.send(message{Type: typeSpeechCancel, ID: u.ID}); err != nil {
			log.Debug().Err(err).Msg("Bridge: failed to send speech_cancel")
		}
		return ctx.Err()
	}
}

func (sp *Speech) VoicesChanged() <-chan struct{} { return sp.s.voicesChanged }

func (sp *Speech) Close() error { return nil }
