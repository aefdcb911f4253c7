package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/recording"
	"github.com/leonardotrapani/hyprcoach/internal/transcriber"
	"github.com/leonardotrapani/hyprcoach/internal/transcript"
	"github.com/rs/zerolog/log"
)

// DefaultNoSpeechTimeout matches how long platform recognisers wait before
// giving up on a silent microphone.
const DefaultNoSpeechTimeout = 8 * time.Second

type StreamingConfig struct {
	NoSpeechTimeout time.Duration
	NewRecorder     func() recording.Recorder
	NewTranscriber  func() transcriber.StreamingAdapter
}

// Streaming records locally and streams audio to a live recogniser.
// Each session gets a fresh recorder and transcriber.
type Streaming struct {
	config StreamingConfig
	events chan Event

	mu      sync.Mutex
	active  bool
	session uint64
	cancel  context.CancelFunc
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewStreaming(cfg StreamingConfig) *Streaming {
	if cfg.NoSpeechTimeout <= 0 {
		cfg.NoSpeechTimeout = DefaultNoSpeechTimeout
	}
	return &Streaming{
		config: cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *Streaming) Events() <-chan Event { return s.events }

func (s *Streaming) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Streaming) Start(ctx context.Context, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("capture closed")
	}
	if s.active {
		return ErrAlreadyActive
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.session++
	s.active = true
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(sessionCtx, s.session, locale)
	return nil
}

// Stop ends the current session without waiting for it; its EventEnded
// follows asynchronously.
func (s *Streaming) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.active = false
		s.cancel()
	}
	return nil
}

func (s *Streaming) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.active {
		s.active = false
		s.cancel()
	}
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Streaming) run(ctx context.Context, session uint64, locale string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		if s.session == session && s.active {
			s.active = false
			s.cancel()
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventEnded})
		log.Debug().Uint64("session", session).Msg("Capture: session ended")
	}()

	recorder := s.config.NewRecorder()
	frames, recErrs, err := recorder.Start(ctx)
	if err != nil {
		s.emitError(AudioCapture, err)
		return
	}
	defer recorder.Stop()

	stt := s.config.NewTranscriber()
	if err := stt.Start(ctx, locale); err != nil {
		s.emitError(classify(err), err)
		return
	}
	defer stt.Close()

	log.Info().Uint64("session", session).Str("locale", locale).Msg("Capture: listening")

	noSpeech := time.NewTimer(s.config.NoSpeechTimeout)
	defer noSpeech.Stop()
	results := stt.Results()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					s.emitError(AudioCapture, errors.New("recorder stopped"))
				}
				return
			}
			if err := stt.SendChunk(frame.Data); err != nil && ctx.Err() == nil {
				log.Debug().Err(err).Msg("Capture: dropping audio chunk")
			}

		case err, ok := <-recErrs:
			if !ok {
				recErrs = nil
				continue
			}
			if err != nil && ctx.Err() == nil {
				s.emitError(AudioCapture, err)
				return
			}

		case r, ok := <-results:
			if !ok {
				if ctx.Err() == nil {
					s.emitError(Network, transcriber.ErrConnectionLost)
				}
				return
			}
			if r.Error != nil {
				s.emitError(classify(r.Error), r.Error)
				return
			}
			if !noSpeech.Stop() {
				select {
				case <-noSpeech.C:
				default:
				}
			}
			noSpeech.Reset(s.config.NoSpeechTimeout)
			s.emit(Event{Kind: EventFragment, Fragment: transcript.Fragment{Text: r.Text, Final: r.IsFinal}})

		case <-noSpeech.C:
			s.emitError(NoSpeech, nil)
			return
		}
	}
}

func (s *Streaming) emitError(kind ErrorKind, err error) {
	if kind.Transient() {
		log.Debug().Str("kind", string(kind)).Msg("Capture: transient error")
	} else {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Capture: session failed")
	}
	s.emit(Event{Kind: EventError, Error: kind, Err: err})
}

// emit blocks until the consumer takes the event or the adapter is closed.
func (s *Streaming) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func classify(err error) ErrorKind {
	var dialErr *transcriber.DialError
	switch {
	case errors.As(err, &dialErr):
		if dialErr.Unauthorized() {
			return NotAllowed
		}
		return Network
	case transcriber.IsServiceError(err):
		return Service
	case errors.Is(err, transcriber.ErrConnectionLost):
		return Network
	default:
		return Service
	}
}
