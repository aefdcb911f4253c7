package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/bridge"
	"github.com/leonardotrapani/hyprcoach/internal/bus"
	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/coach"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/notify"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const voicesTimeout = 5 * time.Second

type Daemon struct {
	configMgr *config.Manager

	mu       sync.RWMutex
	notifier notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	fixedLogLevel bool

	kv         storage.Store
	convo      *conversation.Store
	completer  coach.Completer
	completion *reloadableCompleter
	bridge     *bridge.Server
	capture    capture.Adapter
	synth      playback.Synthesizer
	player     *playback.Player
	coach      *coach.Coordinator

	alwaysOn bool // last value announced to the notifier
}

func New(configMgr *config.Manager, opts ...Option) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := configMgr.GetConfig()
	d := &Daemon{
		configMgr: configMgr,
		notifier:  notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithNotifier overrides the configured notifier. Reloads keep it.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Daemon) { d.notifier = fixedNotifier{n} }
}

type fixedNotifier struct{ notify.Notifier }

func (d *Daemon) notify() notify.Notifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notifier
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Daemon: received signal, shutting down gracefully")
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	if err := d.build(d.ctx, d.configMgr.GetConfig()); err != nil {
		d.cancel()
		d.release()
		return err
	}
	defer d.release()

	d.configMgr.OnChange(d.applyConfig)

	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error {
		err := d.coach.Run(gctx)
		d.cancel()
		return err
	})
	if d.bridge != nil {
		g.Go(func() error { return d.bridge.ListenAndServe(gctx) })
	}
	if err := d.configMgr.StartWatching(gctx); err != nil {
		log.Warn().Err(err).Msg("Daemon: config hot reload disabled")
	} else {
		defer d.configMgr.Stop()
	}

	// Close the listener when any part of the daemon stops
	go func() {
		<-gctx.Done()
		ln.Close()
	}()

	log.Info().Msg("Daemon: started, listening on socket")

	var acceptErr error
	for {
		c, err := ln.Accept()
		if err != nil {
			if gctx.Err() == nil {
				log.Error().Err(err).Msg("Daemon: accept error")
				acceptErr = fmt.Errorf("accept failed: %w", err)
			}
			break
		}
		go d.handle(c)
	}

	d.cancel()
	if err := d.coach.Close(); err != nil {
		log.Warn().Err(err).Msg("Daemon: coach teardown reported errors")
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Daemon: shutdown complete")
	return acceptErr
}

// release closes everything build opened.
func (d *Daemon) release() {
	if d.player != nil {
		d.player.Close()
	}
	if d.capture != nil {
		if err := d.capture.Close(); err != nil {
			log.Debug().Err(err).Msg("Daemon: capture close failed")
		}
	}
	if d.synth != nil {
		if err := d.synth.Close(); err != nil {
			log.Debug().Err(err).Msg("Daemon: synthesizer close failed")
		}
	}
	if d.bridge != nil {
		d.bridge.Close()
	}
	if d.kv != nil {
		if err := d.kv.Close(); err != nil {
			log.Warn().Err(err).Msg("Daemon: storage close failed")
		}
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Debug().Err(err).Msg("Daemon: client read error")
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	cmd, arg, err := bus.ParseRequest(line)
	if err != nil {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	fmt.Fprint(c, d.dispatch(cmd, arg))
}

// dispatch runs one control command and returns the reply line.
func (d *Daemon) dispatch(cmd byte, arg string) string {
	switch cmd {
	case 'a':
		return d.toggle()
	case 'p':
		return reply(d.coach.StartTalking(), "OK talking")
	case 'x':
		return reply(d.coach.Send(), "OK sent")
	case 'm':
		return reply(d.coach.SubmitText(arg), "OK submitted")
	case 'k':
		return reply(d.coach.StopSpeaking(), "OK hushed")
	case 'c':
		return reply(d.coach.Cancel(), "OK canceled")
	case 'h':
		err := d.coach.Stop()
		if err == nil {
			d.announce(false)
		}
		return reply(err, "OK halted")
	case 'r':
		return reply(d.coach.Clear(), "OK cleared")
	case 's':
		snap, err := d.coach.Snapshot()
		if err != nil {
			return errReply(err)
		}
		return formatStatus(snap)
	case 'l':
		data, err := json.Marshal(d.convo.Turns())
		if err != nil {
			return errReply(err)
		}
		return fmt.Sprintf("HISTORY %s\n", data)
	case 'o':
		ctx, cancel := context.WithTimeout(d.ctx, voicesTimeout)
		defer cancel()
		voices, err := d.player.Voices(ctx)
		if err != nil {
			return errReply(err)
		}
		data, err := json.Marshal(voices)
		if err != nil {
			return errReply(err)
		}
		return fmt.Sprintf("VOICES %s\n", data)
	case 'v':
		return fmt.Sprintf("STATUS proto=%s\n", bus.ProtoVer)
	case 'q':
		d.cancel()
		return "OK quitting\n"
	default:
		log.Warn().Str("command", string(cmd)).Msg("Daemon: unknown command")
		return fmt.Sprintf("ERR unknown=%q\n", cmd)
	}
}

func (d *Daemon) toggle() string {
	snap, err := d.coach.Snapshot()
	if err != nil {
		return errReply(err)
	}
	if snap.AlwaysOn {
		if err := d.coach.DisableAlwaysOn(); err != nil {
			return errReply(err)
		}
		d.announce(false)
		return "OK always_on=false\n"
	}
	if err := d.coach.EnableAlwaysOn(); err != nil {
		return errReply(err)
	}
	d.announce(true)
	return "OK always_on=true\n"
}

// announce tells the notifier when always-on mode flips.
func (d *Daemon) announce(on bool) {
	d.mu.Lock()
	changed := d.alwaysOn != on
	d.alwaysOn = on
	d.mu.Unlock()
	if changed {
		go d.notify().ListeningChanged(on)
	}
}

func (d *Daemon) onTransition(state coach.State, captureActive bool) {
	log.Debug().Str("state", string(state)).Bool("capture", captureActive).Msg("Daemon: coach state")
	if state == coach.Idle {
		// the coach leaves always-on mode by itself on fatal capture errors
		d.announce(false)
	}
}

func (d *Daemon) onError(err error) {
	go d.notify().Error(errorMessage(err))
}

func (d *Daemon) onTurn(turn conversation.Turn) {
	if turn.Role == conversation.Assistant && !turn.Error {
		go d.notify().Reply(turn.Text)
	}
}

// applyConfig pushes a reloaded config into the running components.
func (d *Daemon) applyConfig(cfg *config.Config) {
	if err := d.coach.UpdateOptions(coachOptions(cfg)); err != nil {
		log.Warn().Err(err).Msg("Daemon: failed to update coach options")
	}
	d.player.SetOptions(cfg.ToPlayerOptions())
	if d.completion != nil {
		d.completion.update(cfg.ToCompletionConfig())
	}

	d.mu.Lock()
	if _, fixed := d.notifier.(fixedNotifier); !fixed {
		d.notifier = notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)
	}
	d.mu.Unlock()

	if !d.fixedLogLevel {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && level != zerolog.NoLevel {
			zerolog.SetGlobalLevel(level)
		}
	}
	log.Info().Msg("Daemon: configuration reloaded; backend changes apply after restart")
}

func formatStatus(s coach.Snapshot) string {
	return fmt.Sprintf("STATUS state=%s always_on=%t capture=%t auto_speak=%t turns=%d\n",
		s.State, s.AlwaysOn, s.CaptureActive, s.AutoSpeak, s.Turns)
}

func reply(err error, ok string) string {
	if err != nil {
		return errReply(err)
	}
	return ok + "\n"
}

func errReply(err error) string {
	return fmt.Sprintf("ERR %s\n", errorMessage(err))
}

// errorMessage turns coach and adapter errors into text for the learner.
func errorMessage(err error) string {
	var exhausted *completion.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return exhausted.UserMessage()
	case errors.Is(err, completion.ErrMissingCredential):
		return "No API key is configured for the AI model."
	case errors.Is(err, capture.ErrUnsupported):
		return "Speech recognition is not available; type your messages instead."
	case errors.Is(err, playback.ErrUnsupported):
		return "Speech playback is not available; replies will only be shown as text."
	case errors.Is(err, coach.ErrBusy):
		return "Still waiting for the previous reply."
	case errors.Is(err, coach.ErrEmptyUtterance):
		return "Nothing to send yet."
	default:
		return err.Error()
	}
}
