package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leonardotrapani/hyprcoach/internal/bridge"
	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/coach"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/recording"
	"github.com/leonardotrapani/hyprcoach/internal/storage"
	"github.com/leonardotrapani/hyprcoach/internal/transcriber"
	"github.com/rs/zerolog/log"
)

// Option replaces one of the components the daemon would otherwise build
// from config.
type Option func(*Daemon)

func WithCapture(a capture.Adapter) Option {
	return func(d *Daemon) { d.capture = a }
}

func WithSynthesizer(s playback.Synthesizer) Option {
	return func(d *Daemon) { d.synth = s }
}

func WithCompleter(c coach.Completer) Option {
	return func(d *Daemon) { d.completer = c }
}

func WithStore(s storage.Store) Option {
	return func(d *Daemon) { d.kv = s }
}

// WithFixedLogLevel stops config reloads from changing the log level, for
// when it was set on the command line.
func WithFixedLogLevel() Option {
	return func(d *Daemon) { d.fixedLogLevel = true }
}

// build wires every component from the current config. Components passed
// as options are kept.
func (d *Daemon) build(ctx context.Context, cfg *config.Config) error {
	if d.kv == nil {
		kv, err := storage.New(ctx, cfg.ToStorageConfig())
		if err != nil {
			return fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
		}
		d.kv = kv
	}

	convo, err := conversation.Open(ctx, d.kv, cfg.Storage.Key)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	d.convo = convo

	if d.completer == nil {
		rc := &reloadableCompleter{}
		rc.update(cfg.ToCompletionConfig())
		d.completion = rc
		d.completer = rc
	}

	if cfg.UsesBridge() && (d.capture == nil || d.synth == nil) {
		d.bridge = bridge.NewServer(cfg.Bridge.Listen)
	}
	if d.capture == nil {
		d.capture = newCapture(cfg, d.bridge)
	}
	if d.synth == nil {
		d.synth = newSynthesizer(cfg, d.bridge)
	}
	d.player = playback.NewPlayer(d.synth, cfg.ToPlayerOptions())

	c, err := coach.New(coach.Config{
		Capture:      d.capture,
		Speaker:      d.player,
		Completer:    d.completer,
		Store:        convo,
		Options:      coachOptions(cfg),
		OnTransition: d.onTransition,
		OnError:      d.onError,
		OnTurn:       d.onTurn,
	})
	if err != nil {
		return err
	}
	d.coach = c

	log.Info().
		Str("capture", cfg.Capture.Backend).
		Str("playback", cfg.Playback.Backend).
		Str("storage", cfg.Storage.Backend).
		Str("locale", cfg.Locale()).
		Int("turns", convo.Len()).
		Msg("Daemon: components ready")
	return nil
}

func newCapture(cfg *config.Config, b *bridge.Server) capture.Adapter {
	switch cfg.Capture.Backend {
	case "deepgram":
		recCfg := cfg.ToRecordingConfig()
		dgCfg := cfg.ToDeepgramConfig()
		return capture.NewStreaming(capture.StreamingConfig{
			NoSpeechTimeout: cfg.Capture.NoSpeechTimeout,
			NewRecorder:     func() recording.Recorder { return recording.NewPipeWire(recCfg) },
			NewTranscriber:  func() transcriber.StreamingAdapter { return transcriber.NewDeepgram(dgCfg) },
		})
	case "bridge":
		return b.Capture()
	default:
		return capture.NewUnsupported()
	}
}

func newSynthesizer(cfg *config.Config, b *bridge.Server) playback.Synthesizer {
	switch cfg.Playback.Backend {
	case "espeak":
		return playback.NewEspeak(playback.EspeakConfig{})
	case "bridge":
		return b.Speech()
	default:
		return playback.NewUnsupported()
	}
}

func coachOptions(cfg *config.Config) coach.Options {
	return coach.Options{
		Locale:          cfg.Locale(),
		AutoSpeak:       cfg.Playback.AutoSpeak,
		SilenceTimeout:  cfg.Capture.SilenceTimeout,
		RestartDelay:    cfg.Capture.RestartDelay,
		HistoryWindow:   cfg.Completion.HistoryWindow,
		ReplaceLastWord: cfg.Capture.ReplaceLastWord,
	}
}

// reloadableCompleter lets the daemon start without an API key. Requests fail
// with completion.ErrMissingCredential until a reload supplies one.
type reloadableCompleter struct {
	mu     sync.RWMutex
	client *completion.Client
}

func (r *reloadableCompleter) update(cfg completion.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		client, err := completion.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Daemon: completion client not configured")
			return
		}
		r.client = client
		return
	}
	if err := r.client.Update(cfg); err != nil {
		if errors.Is(err, completion.ErrMissingCredential) {
			r.client = nil
		}
		log.Warn().Err(err).Msg("Daemon: completion client not configured")
	}
}

func (r *reloadableCompleter) Complete(ctx context.Context, history []conversation.Turn, text string) (completion.Result, error) {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()
	if client == nil {
		return completion.Result{}, completion.ErrMissingCredential
	}
	return client.Complete(ctx, history, text)
}
