package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EventKind int

const (
	EventStarted EventKind = iota
	EventEnded
	EventError
	EventVoicesChanged
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventVoicesChanged:
		return "voices-changed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	ID   string
	Err  error
}

type Options struct {
	Locale     string
	Voice      string // explicit voice name, skips selection
	VoiceHints []string
	Rate       int
}

// Player owns at most one utterance at a time. Starting a new one cancels
// the previous, and events of anything but the current utterance are dropped.
type Player struct {
	synth  Synthesizer
	events chan Event

	mu           sync.Mutex
	opts         Options
	voices       []Voice
	voicesLoaded bool
	current      string
	cancel       context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewPlayer(synth Synthesizer, opts Options) *Player {
	p := &Player{
		synth:  synth,
		events: make(chan Event, 16),
		opts:   opts,
		done:   make(chan struct{}),
	}
	if n, ok := synth.(VoiceNotifier); ok {
		p.wg.Add(1)
		go p.watchVoices(n.VoicesChanged())
	}
	return p
}

func (p *Player) Events() <-chan Event { return p.events }

func (p *Player) SetOptions(opts Options) {
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
}

// Speak cancels any current utterance and starts text. Completion is
// reported through Events.
func (p *Player) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("cannot speak empty text")
	}
	select {
	case <-p.done:
		return "", errors.New("player closed")
	default:
	}

	id := uuid.NewString()
	uctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.current = id
	p.cancel = cancel
	opts := p.opts
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(uctx, Utterance{ID: id, Text: text, Rate: opts.Rate}, opts)
	return id, nil
}

// Cancel stops the current utterance. No event follows for it.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.current = ""
}

// Speaking reports whether an utterance is in flight.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != ""
}

// Voices returns the cached voice list, loading it on first use.
func (p *Player) Voices(ctx context.Context) ([]Voice, error) {
	p.mu.Lock()
	if p.voicesLoaded {
		voices := append([]Voice(nil), p.voices...)
		p.mu.Unlock()
		return voices, nil
	}
	p.mu.Unlock()

	voices, err := p.synth.Voices(ctx)
	if err != nil {
		return nil, err
	}

	// an empty list means the synthesizer is not ready; ask again next time
	if len(voices) > 0 {
		p.mu.Lock()
		p.voices = voices
		p.voicesLoaded = true
		p.mu.Unlock()
	}
	return append([]Voice(nil), voices...), nil
}

func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.Cancel()
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

func (p *Player) run(ctx context.Context, u Utterance, opts Options) {
	defer p.wg.Done()

	u.Voice = p.pickVoice(ctx, opts)
	log.Debug().Str("id", u.ID).Str("voice", u.Voice.Name).Str("lang", u.Voice.Lang).Msg("Playback: speaking")

	err := p.synth.Speak(ctx, u, func() {
		p.emitCurrent(Event{Kind: EventStarted, ID: u.ID})
	})

	if ctx.Err() != nil {
		// canceled utterances end silently
		return
	}

	p.mu.Lock()
	if p.current == u.ID {
		p.current = ""
		p.cancel = nil
	} else {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("id", u.ID).Msg("Playback: utterance failed")
		p.emit(Event{Kind: EventError, ID: u.ID, Err: err})
		return
	}
	p.emit(Event{Kind: EventEnded, ID: u.ID})
}

func (p *Player) pickVoice(ctx context.Context, opts Options) Voice {
	voices, err := p.Voices(ctx)
	if err != nil && !errors.Is(err, ErrUnsupported) {
		log.Warn().Err(err).Msg("Playback: failed to list voices")
	}

	if opts.Voice != "" {
		for _, v := range voices {
			if strings.EqualFold(v.Name, opts.Voice) {
				return v
			}
		}
		return Voice{Name: opts.Voice, Lang: opts.Locale}
	}

	if v, ok := SelectVoice(voices, opts.Locale, opts.VoiceHints); ok {
		return v
	}
	// no voices known yet: let the synthesizer choose by language
	return Voice{Lang: opts.Locale}
}

func (p *Player) watchVoices(changed <-chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			p.mu.Lock()
			p.voices = nil
			p.voicesLoaded = false
			p.mu.Unlock()
			p.emit(Event{Kind: EventVoicesChanged})
		}
	}
}

func (p *Player) emitCurrent(ev Event) {
	p.mu.Lock()
	current := p.current == ev.ID
	p.mu.Unlock()
	if current {
		p.emit(ev)
	}
}

func (p *Player) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}
