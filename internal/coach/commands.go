package coach

import (
	"context"
	"errors"
	"strings"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/rs/zerolog/log"
)

type cmdKind int

const (
	cmdEnableAlwaysOn cmdKind = iota
	cmdDisableAlwaysOn
	cmdStartTalking
	cmdSend
	cmdSubmitText
	cmdStopSpeaking
	cmdCancel
	cmdStop
	cmdClear
	cmdSnapshot
	cmdUpdateOptions
	cmdClose
)

type command struct {
	kind  cmdKind
	text  string
	opts  Options
	reply chan reply
}

type reply struct {
	err  error
	snap Snapshot
}

// EnableAlwaysOn starts the hands-free listen, reply, listen loop.
func (c *Coordinator) EnableAlwaysOn() error {
	return c.do(command{kind: cmdEnableAlwaysOn}).err
}

// DisableAlwaysOn stops capture, playback and any pending reply.
func (c *Coordinator) DisableAlwaysOn() error {
	return c.do(command{kind: cmdDisableAlwaysOn}).err
}

// StartTalking starts a push-to-talk utterance.
func (c *Coordinator) StartTalking() error {
	return c.do(command{kind: cmdStartTalking}).err
}

// Send submits the buffered push-to-talk utterance.
func (c *Coordinator) Send() error {
	return c.do(command{kind: cmdSend}).err
}

// SubmitText submits typed input.
func (c *Coordinator) SubmitText(text string) error {
	return c.do(command{kind: cmdSubmitText, text: text}).err
}

// StopSpeaking interrupts the current reply and leaves always-on mode.
func (c *Coordinator) StopSpeaking() error {
	return c.do(command{kind: cmdStopSpeaking}).err
}

// Cancel aborts the pending reply and returns to the state before it was
// requested.
func (c *Coordinator) Cancel() error {
	return c.do(command{kind: cmdCancel}).err
}

func (c *Coordinator) Stop() error {
	return c.do(command{kind: cmdStop}).err
}

// Clear empties the conversation.
func (c *Coordinator) Clear() error {
	return c.do(command{kind: cmdClear}).err
}

func (c *Coordinator) Snapshot() (Snapshot, error) {
	r := c.do(command{kind: cmdSnapshot})
	return r.snap, r.err
}

// UpdateOptions applies reloaded settings.
func (c *Coordinator) UpdateOptions(opts Options) error {
	return c.do(command{kind: cmdUpdateOptions, opts: opts}).err
}

// Close tears everything down and stops Run. It is safe to call again.
func (c *Coordinator) Close() error {
	err := c.do(command{kind: cmdClose}).err
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (c *Coordinator) do(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return reply{err: ErrClosed}
	}
	select {
	case r := <-cmd.reply:
		return r
	case <-c.done:
		select {
		case r := <-cmd.reply:
			return r
		default:
			return reply{err: ErrClosed}
		}
	}
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd command) {
	var r reply
	switch cmd.kind {
	case cmdEnableAlwaysOn:
		r.err = c.enableAlwaysOn(ctx)
	case cmdDisableAlwaysOn, cmdStop:
		c.alwaysOn = false
		c.goIdle()
	case cmdStartTalking:
		r.err = c.startTalking(ctx)
	case cmdSend:
		r.err = c.send(ctx)
	case cmdSubmitText:
		r.err = c.submitText(ctx, cmd.text)
	case cmdStopSpeaking:
		if c.state == Speaking {
			c.alwaysOn = false
			c.goIdle()
		}
	case cmdCancel:
		c.cancel(ctx)
	case cmdClear:
		r.err = c.cfg.Store.Clear(ctx)
	case cmdSnapshot:
		r.snap = c.snapshot()
	case cmdUpdateOptions:
		c.updateOptions(cmd.opts)
	}
	cmd.reply <- r
}

func (c *Coordinator) enableAlwaysOn(ctx context.Context) error {
	if c.captureUnsupported {
		return capture.ErrUnsupported
	}
	c.alwaysOn = true
	log.Info().Msg("Coach: always-on enabled")

	switch c.state {
	case Idle:
		c.reconciler.Reset()
		c.setState(Listening)
		return c.startCapture(ctx)
	case Listening:
		if !c.cfg.Capture.Active() {
			return c.startCapture(ctx)
		}
	}
	// awaiting or speaking: capture resumes when the turn settles
	return nil
}

func (c *Coordinator) startTalking(ctx context.Context) error {
	if c.captureUnsupported {
		return capture.ErrUnsupported
	}
	switch c.state {
	case AwaitingCompletion:
		return ErrBusy
	case Listening:
		if c.cfg.Capture.Active() {
			return nil
		}
	case Speaking:
		c.cfg.Speaker.Cancel()
		c.speakingID = ""
		c.reconciler.Reset()
	default:
		c.reconciler.Reset()
	}
	c.setState(Listening)
	return c.startCapture(ctx)
}

func (c *Coordinator) send(ctx context.Context) error {
	if c.state == AwaitingCompletion {
		return ErrBusy
	}
	if c.reconciler.Text() == "" {
		return ErrEmptyUtterance
	}
	if !c.alwaysOn {
		c.stopCapture()
	}
	c.submit(ctx, c.reconciler.Take())
	return nil
}

func (c *Coordinator) submitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyUtterance
	}
	if c.state == AwaitingCompletion {
		return ErrBusy
	}
	if c.state == Speaking {
		c.cfg.Speaker.Cancel()
		c.speakingID = ""
	}
	c.submit(ctx, text)
	return nil
}

func (c *Coordinator) cancel(ctx context.Context) {
	if c.inflight == nil {
		return
	}
	req := c.inflight
	c.inflight = nil
	req.cancel()
	c.restore(ctx, req)
}

func (c *Coordinator) snapshot() Snapshot {
	return Snapshot{
		State:         c.state,
		AlwaysOn:      c.alwaysOn,
		CaptureActive: c.cfg.Capture.Active(),
		AutoSpeak:     c.opts.AutoSpeak && !c.playbackUnsupported,
		Display:       c.reconciler.Display(),
		Turns:         c.cfg.Store.Len(),
	}
}

func (c *Coordinator) updateOptions(opts Options) {
	opts = opts.withDefaults()
	c.opts = opts
	c.endpointer.SetDuration(opts.SilenceTimeout)
	c.reconciler.ReplaceLastWord = opts.ReplaceLastWord
	log.Info().
		Bool("auto_speak", opts.AutoSpeak).
		Dur("silence_timeout", opts.SilenceTimeout).
		Str("locale", opts.Locale).
		Msg("Coach: options updated")
}
