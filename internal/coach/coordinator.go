package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/silence"
	"github.com/leonardotrapani/hyprcoach/internal/transcript"
	"github.com/rs/zerolog/log"
)

// Completer produces the assistant's reply. *completion.Client implements it.
type Completer interface {
	Complete(ctx context.Context, history []conversation.Turn, text string) (completion.Result, error)
}

// Speaker plays replies. *playback.Player implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) (string, error)
	Cancel()
	Events() <-chan playback.Event
}

type Config struct {
	Capture   capture.Adapter
	Speaker   Speaker
	Completer Completer
	Store     *conversation.Store
	Options   Options

	// OnTransition is called from the loop on every state change.
	OnTransition func(state State, captureActive bool)
	// OnError receives failures the learner should be told about.
	OnError func(err error)
	// OnTurn receives every turn appended to the conversation.
	OnTurn func(turn conversation.Turn)
}

type request struct {
	id        uint64
	cancel    context.CancelFunc
	text      string
	prevState State
}

type result struct {
	id  uint64
	res completion.Result
	err error
}

// Coordinator is the turn-taking state machine. All state lives in the Run
// goroutine; commands are sent to it and wait for its answer.
type Coordinator struct {
	cfg Config

	cmds      chan command
	silenceCh chan struct{}
	restartCh chan uint64
	results   chan result
	done      chan struct{}

	// owned by the loop
	state               State
	alwaysOn            bool
	opts                Options
	reconciler          *transcript.Reconciler
	endpointer          *silence.Endpointer
	restartTimer        *time.Timer
	restartGen          uint64
	reqID               uint64
	inflight            *request
	speakingID          string
	captureUnsupported  bool
	playbackUnsupported bool
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Capture == nil || cfg.Speaker == nil || cfg.Completer == nil || cfg.Store == nil {
		return nil, fmt.Errorf("coach: capture, speaker, completer and store are required")
	}
	opts := cfg.Options.withDefaults()

	c := &Coordinator{
		cfg:        cfg,
		cmds:       make(chan command),
		silenceCh:  make(chan struct{}, 1),
		restartCh:  make(chan uint64, 1),
		results:    make(chan result, 1),
		done:       make(chan struct{}),
		state:      Idle,
		opts:       opts,
		reconciler: transcript.NewReconciler(opts.ReplaceLastWord),
	}
	c.endpointer = silence.New(opts.SilenceTimeout, func() {
		select {
		case c.silenceCh <- struct{}{}:
		default:
		}
	})
	return c, nil
}

// Run processes events until ctx is canceled or Close is called. Commands
// block until Run is running.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	captureEvents := c.cfg.Capture.Events()
	playbackEvents := c.cfg.Speaker.Events()

	log.Debug().Msg("Coach: event loop started")
	for {
		select {
		case <-ctx.Done():
			if err := c.teardown(); err != nil {
				log.Error().Err(err).Msg("Coach: teardown failed")
			}
			return nil

		case cmd := <-c.cmds:
			if cmd.kind == cmdClose {
				cmd.reply <- reply{err: c.teardown()}
				return nil
			}
			c.handleCommand(ctx, cmd)

		case ev := <-captureEvents:
			c.handleCapture(ctx, ev)

		case ev := <-playbackEvents:
			c.handlePlayback(ctx, ev)

		case <-c.silenceCh:
			c.handleSilence(ctx)

		case gen := <-c.restartCh:
			c.handleRestart(ctx, gen)

		case r := <-c.results:
			c.handleResult(ctx, r)
		}
	}
}

func (c *Coordinator) handleCapture(ctx context.Context, ev capture.Event) {
	switch ev.Kind {
	case capture.EventFragment:
		// speech heard while a reply is pending or playing is not queued
		if c.state != Listening {
			return
		}
		c.reconciler.Apply(ev.Fragment)
		if ev.Fragment.Final {
			c.endpointer.Reset()
		}

	case capture.EventError:
		if ev.Error.Transient() {
			log.Debug().Str("kind", string(ev.Error)).Msg("Coach: transient capture error")
			return
		}
		log.Warn().Str("kind", string(ev.Error)).Err(ev.Err).Msg("Coach: capture failed, always-on disabled")
		c.alwaysOn = false
		c.report(&CaptureError{Kind: ev.Error, Err: ev.Err})
		if c.state == Listening {
			c.goIdle()
		}

	case capture.EventEnded:
		if c.cfg.Capture.Active() {
			// Ended of an earlier session; a newer one is running
			return
		}
		switch {
		case c.alwaysOn && (c.state == Listening || c.state == AwaitingCompletion):
			c.scheduleRestart()
		case !c.alwaysOn && c.state == Listening && c.reconciler.Text() == "":
			// a push-to-talk session ended with nothing heard
			c.goIdle()
		}
	}
}

func (c *Coordinator) handlePlayback(ctx context.Context, ev playback.Event) {
	switch ev.Kind {
	case playback.EventVoicesChanged:
		log.Debug().Msg("Coach: voice list changed")
		return
	case playback.EventStarted:
		if ev.ID == c.speakingID {
			log.Debug().Str("id", ev.ID).Msg("Coach: playback started")
		}
		return
	}

	if c.state != Speaking || ev.ID != c.speakingID {
		return
	}
	c.speakingID = ""

	if ev.Kind == playback.EventError {
		if errors.Is(ev.Err, playback.ErrUnsupported) {
			c.playbackUnavailable(ev.Err)
		} else {
			log.Error().Err(ev.Err).Msg("Coach: playback failed")
		}
	}
	c.settle()
}

func (c *Coordinator) handleSilence(ctx context.Context) {
	// a newer timer was armed after this one fired
	if c.endpointer.Pending() {
		return
	}
	if !c.alwaysOn || c.state != Listening {
		return
	}
	if c.reconciler.Text() == "" {
		return
	}
	text := c.reconciler.Take()
	log.Debug().Str("text", text).Msg("Coach: silence detected, submitting")
	c.submit(ctx, text)
}

func (c *Coordinator) handleRestart(ctx context.Context, gen uint64) {
	if gen != c.restartGen {
		return
	}
	c.restartTimer = nil
	if !c.alwaysOn || (c.state != Listening && c.state != AwaitingCompletion) {
		return
	}
	if c.cfg.Capture.Active() {
		return
	}
	log.Debug().Msg("Coach: restarting capture")
	if err := c.startCapture(ctx); err != nil {
		log.Debug().Err(err).Msg("Coach: capture restart failed")
	}
}

func (c *Coordinator) handleResult(ctx context.Context, r result) {
	if c.inflight == nil || r.id != c.inflight.id {
		log.Debug().Uint64("request", r.id).Msg("Coach: dropping stale completion")
		return
	}
	req := c.inflight
	c.inflight = nil
	req.cancel()

	if errors.Is(r.err, completion.ErrCanceled) {
		c.restore(ctx, req)
		return
	}

	c.appendTurn(ctx, conversation.User, req.text, false)

	if r.err != nil {
		log.Error().Err(r.err).Msg("Coach: completion failed")
		c.appendTurn(ctx, conversation.Assistant, failureMessage(r.err), true)
		c.report(r.err)
		c.settle()
		return
	}

	log.Info().Str("model", r.res.Model).Int("attempts", r.res.Attempts).Msg("Coach: reply received")
	c.appendTurn(ctx, conversation.Assistant, r.res.Text, false)

	if c.opts.AutoSpeak && !c.playbackUnsupported {
		c.speak(ctx, r.res.Text)
		return
	}
	c.settle()
}

// submit hands text to the completer. The conversation is only written when
// the request settles, so a canceled request leaves no trace.
func (c *Coordinator) submit(ctx context.Context, text string) {
	prev := c.state
	if prev == Speaking {
		prev = c.restingState()
	}

	c.endpointer.Stop()
	c.reconciler.Reset()

	c.reqID++
	reqCtx, cancel := context.WithCancel(ctx)
	req := &request{id: c.reqID, cancel: cancel, text: text, prevState: prev}
	c.inflight = req

	history := c.cfg.Store.Context(c.opts.HistoryWindow)
	c.setState(AwaitingCompletion)

	log.Info().Uint64("request", req.id).Int("history", len(history)).Msg("Coach: requesting reply")
	go func() {
		res, err := c.cfg.Completer.Complete(reqCtx, history, text)
		select {
		case c.results <- result{id: req.id, res: res, err: err}:
		case <-c.done:
		}
	}()
}

// speak stops capture before playback starts so the coach never hears itself.
func (c *Coordinator) speak(ctx context.Context, text string) {
	c.stopCapture()
	c.endpointer.Stop()
	c.cancelRestart()

	id, err := c.cfg.Speaker.Speak(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Coach: failed to start playback")
		c.settle()
		return
	}
	c.speakingID = id
	c.setState(Speaking)
}

// settle moves to the resting state once a turn is over. The next turn
// starts from an empty buffer.
func (c *Coordinator) settle() {
	c.reconciler.Reset()
	c.endpointer.Stop()
	if !c.alwaysOn {
		c.goIdle()
		return
	}
	c.setState(Listening)
	if !c.cfg.Capture.Active() {
		c.scheduleRestart()
	}
}

// restore returns to the state held before a canceled submission.
func (c *Coordinator) restore(ctx context.Context, req *request) {
	log.Info().Uint64("request", req.id).Msg("Coach: completion canceled")
	switch {
	case req.prevState == Listening || c.alwaysOn:
		c.setState(Listening)
		if !c.cfg.Capture.Active() {
			if err := c.startCapture(ctx); err != nil {
				log.Debug().Err(err).Msg("Coach: capture restart after cancel failed")
			}
		}
	default:
		c.goIdle()
	}
}

func (c *Coordinator) restingState() State {
	if c.alwaysOn {
		return Listening
	}
	return Idle
}

// goIdle stops everything in flight.
func (c *Coordinator) goIdle() {
	c.abortCompletion()
	if c.speakingID != "" {
		c.cfg.Speaker.Cancel()
		c.speakingID = ""
	}
	c.stopCapture()
	c.endpointer.Stop()
	c.cancelRestart()
	c.setState(Idle)
}

func (c *Coordinator) startCapture(ctx context.Context) error {
	var err error
	if c.captureUnsupported {
		err = capture.ErrUnsupported
	} else {
		err = c.cfg.Capture.Start(ctx, c.opts.Locale)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrAlreadyActive):
		log.Debug().Msg("Coach: capture already active")
		return nil
	case c.captureUnsupported:
		c.alwaysOn = false
	case errors.Is(err, capture.ErrUnsupported):
		c.captureUnsupported = true
		c.alwaysOn = false
		log.Warn().Msg("Coach: speech capture unsupported, text input only")
		c.report(err)
	default:
		c.alwaysOn = false
		log.Error().Err(err).Msg("Coach: failed to start capture")
		c.report(&CaptureError{Kind: capture.AudioCapture, Err: err})
	}
	if c.state == Listening {
		c.goIdle()
	}
	return err
}

func (c *Coordinator) stopCapture() {
	if err := c.cfg.Capture.Stop(); err != nil {
		log.Debug().Err(err).Msg("Coach: capture stop failed")
	}
}

func (c *Coordinator) scheduleRestart() {
	c.cancelRestart()
	c.restartGen++
	gen := c.restartGen
	c.restartTimer = time.AfterFunc(c.opts.RestartDelay, func() {
		select {
		case c.restartCh <- gen:
		case <-c.done:
		}
	})
}

func (c *Coordinator) cancelRestart() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	c.restartGen++
}

func (c *Coordinator) abortCompletion() {
	if c.inflight != nil {
		c.inflight.cancel()
		c.inflight = nil
	}
}

func (c *Coordinator) playbackUnavailable(err error) {
	if c.playbackUnsupported {
		return
	}
	c.playbackUnsupported = true
	log.Warn().Msg("Coach: speech playback unsupported, auto-speak disabled")
	c.report(err)
}

func (c *Coordinator) appendTurn(ctx context.Context, role conversation.Role, text string, failed bool) {
	var (
		turn conversation.Turn
		err  error
	)
	if failed {
		turn, err = c.cfg.Store.AppendError(ctx, text)
	} else {
		turn, err = c.cfg.Store.Append(ctx, role, text)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Coach: failed to persist conversation")
	}
	if c.cfg.OnTurn != nil {
		c.cfg.OnTurn(turn)
	}
}

func (c *Coordinator) setState(s State) {
	if s == c.state {
		return
	}
	log.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("Coach: state change")
	c.state = s
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(s, c.cfg.Capture.Active())
	}
}

func (c *Coordinator) report(err error) {
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

// teardown runs every cleanup step even if an earlier one fails or panics.
func (c *Coordinator) teardown() error {
	c.alwaysOn = false
	err := errors.Join(
		guard("stop capture", c.cfg.Capture.Stop),
		guard("cancel playback", func() error { c.cfg.Speaker.Cancel(); return nil }),
		guard("stop silence timer", func() error { c.endpointer.Stop(); return nil }),
		guard("abort completion", func() error { c.abortCompletion(); return nil }),
		guard("stop restart timer", func() error { c.cancelRestart(); return nil }),
	)
	c.speakingID = ""
	c.setState(Idle)
	return err
}

func guard(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", step, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

func failureMessage(err error) string {
	var ex *completion.ExhaustedError
	if errors.As(err, &ex) {
		return ex.UserMessage()
	}
	if errors.Is(err, completion.ErrMissingCredential) {
		return "No API key is configured. Set completion.api_key or HYPRCOACH_API_KEY and try again."
	}
	if errors.Is(err, completion.ErrNoCandidates) {
		return "No AI models are configured. Add some to completion.models in your config."
	}
	return "Sorry, something went wrong: " + strings.TrimSpace(err.Error())
}
