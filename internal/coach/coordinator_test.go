package coach

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/storage"
	"github.com/leonardotrapani/hyprcoach/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type harness struct {
	t         *testing.T
	capture   *testutil.MockCapture
	synth     *testutil.MockSynthesizer
	player    *playback.Player
	completer *testutil.MockCompleter
	store     *conversation.Store
	coach     *Coordinator

	mu     sync.Mutex
	errs   []error
	turns  []conversation.Turn
	states []State
}

func testOptions() Options {
	return Options{
		Locale:         "en-US",
		AutoSpeak:      true,
		SilenceTimeout: 30 * time.Millisecond,
		RestartDelay:   5 * time.Millisecond,
		HistoryWindow:  10,
	}
}

func newHarness(t *testing.T, opts Options, synth playback.Synthesizer) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		capture:   testutil.NewMockCapture(),
		completer: testutil.NewMockCompleter("Gravity pulls masses together."),
	}
	if synth == nil {
		h.synth = testutil.NewMockSynthesizer()
		h.synth.Manual = true
		synth = h.synth
	}
	h.player = playback.NewPlayer(synth, playback.Options{Locale: opts.Locale})

	store, err := conversation.Open(context.Background(), storage.NewMemoryStore(), "")
	require.NoError(t, err)
	h.store = store

	h.coach, err = New(Config{
		Capture:   h.capture,
		Speaker:   h.player,
		Completer: h.completer,
		Store:     store,
		Options:   opts,
		OnTransition: func(s State, _ bool) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
		OnTurn: func(turn conversation.Turn) {
			h.mu.Lock()
			h.turns = append(h.turns, turn)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		h.coach.Run(ctx)
	}()
	t.Cleanup(func() {
		h.coach.Close()
		cancel()
		<-runDone
		h.player.Close()
	})
	return h
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	snap, err := h.coach.Snapshot()
	require.NoError(h.t, err)
	return snap
}

func (h *harness) waitState(s State) {
	h.t.Helper()
	testutil.WaitForCondition(h.t, func() bool { return h.snapshot().State == s }, waitTimeout)
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *harness) transitions() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) hookedTurns() []conversation.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]conversation.Turn(nil), h.turns...)
}

// playing waits for exactly one utterance to be in progress and returns its id.
func (h *harness) playing() string {
	h.t.Helper()
	testutil.WaitForCondition(h.t, func() bool { return len(h.synth.Playing()) == 1 }, waitTimeout)
	return h.synth.Playing()[0]
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestAlwaysOn_SubmitsAfterSilence(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	require.NoError(t, h.coach.EnableAlwaysOn())
	snap := h.snapshot()
	assert.Equal(t, Listening, snap.State)
	assert.True(t, snap.AlwaysOn)
	assert.True(t, snap.CaptureActive)
	assert.Equal(t, []string{"en-US"}, h.capture.Locales())

	require.True(t, h.capture.Fragment("what", false))
	require.True(t, h.capture.Fragment("what is", true))
	require.True(t, h.capture.Fragment("gravity", true))

	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 1 }, waitTimeout)
	assert.Equal(t, "what is gravity", h.completer.Calls()[0].Text)

	h.waitState(Speaking)
	assert.False(t, h.capture.Active(), "capture must stop before speaking")
	id := h.playing()
	assert.Equal(t, "Gravity pulls masses together.", h.synth.Spoken()[0].Text)

	turns := h.store.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.User, turns[0].Role)
	assert.Equal(t, "what is gravity", turns[0].Text)
	assert.Equal(t, conversation.Assistant, turns[1].Role)
	assert.Len(t, h.hookedTurns(), 2)

	require.True(t, h.synth.Finish(id))
	h.waitState(Listening)
	testutil.WaitForCondition(t, h.capture.Active, waitTimeout)
	assert.Equal(t, 2, h.capture.Starts())
	assert.Equal(t, []State{Listening, AwaitingCompletion, Speaking, Listening}, h.transitions())
}

func TestAlwaysOn_InterimFragmentsNeverSubmit(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	require.NoError(t, h.coach.EnableAlwaysOn())

	h.capture.Fragment("what is", false)
	h.capture.Fragment("what is gravity", false)
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, h.completer.Calls())
	snap := h.snapshot()
	assert.Equal(t, Listening, snap.State)
	assert.Equal(t, "what is gravity", snap.Display)
}

func TestAlwaysOn_NewFinalRestartsSilence(t *testing.T) {
	opts := testOptions()
	opts.SilenceTimeout = 150 * time.Millisecond
	h := newHarness(t, opts, nil)
	require.NoError(t, h.coach.EnableAlwaysOn())

	h.capture.Fragment("one", true)
	time.Sleep(40 * time.Millisecond)
	h.capture.Fragment("two", true)
	time.Sleep(40 * time.Millisecond)
	h.capture.Fragment("three", true)

	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 1 }, waitTimeout)
	time.Sleep(200 * time.Millisecond)
	calls := h.completer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "one two three", calls[0].Text)
}

func TestPushToTalk(t *testing.T) {
	opts := testOptions()
	opts.AutoSpeak = false
	h := newHarness(t, opts, nil)

	assert.ErrorIs(t, h.coach.Send(), ErrEmptyUtterance)

	require.NoError(t, h.coach.StartTalking())
	assert.Equal(t, Listening, h.snapshot().State)
	require.True(t, h.capture.Fragment("hello coach", true))

	// push-to-talk never submits on silence
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, h.completer.Calls())

	require.NoError(t, h.coach.Send())
	assert.False(t, h.capture.Active())

	h.waitState(Idle)
	calls := h.completer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hello coach", calls[0].Text)
	assert.Equal(t, 2, h.store.Len())
	assert.Equal(t, 1, h.capture.Starts())
}

func TestPushToTalk_EndedWithNothingHeard(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	require.NoError(t, h.coach.StartTalking())
	require.True(t, h.capture.End())

	h.waitState(Idle)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.capture.Starts())
}

func TestSubmission_RejectedWhileAwaiting(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.completer.Gate = make(chan struct{})

	require.NoError(t, h.coach.SubmitText("first question"))
	assert.Equal(t, AwaitingCompletion, h.snapshot().State)

	assert.ErrorIs(t, h.coach.SubmitText("second question"), ErrBusy)
	assert.ErrorIs(t, h.coach.Send(), ErrBusy)
	assert.ErrorIs(t, h.coach.StartTalking(), ErrBusy)
	assert.ErrorIs(t, h.coach.SubmitText("   "), ErrEmptyUtterance)

	close(h.completer.Gate)
	h.waitState(Speaking)
	assert.Len(t, h.completer.Calls(), 1)
}

func TestCancel_RestoresPreSubmitState(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.completer.Gate = make(chan struct{})

	require.NoError(t, h.coach.StartTalking())
	h.capture.Fragment("tell me a joke", true)
	require.NoError(t, h.coach.Send())
	assert.Equal(t, AwaitingCompletion, h.snapshot().State)
	assert.False(t, h.capture.Active())

	require.NoError(t, h.coach.Cancel())
	snap := h.snapshot()
	assert.Equal(t, Listening, snap.State)
	assert.True(t, snap.CaptureActive)
	assert.Equal(t, 2, h.capture.Starts())

	close(h.completer.Gate)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.store.Len(), "a canceled request appends nothing")
	assert.Equal(t, Listening, h.snapshot().State)
	assert.Empty(t, h.errors())

	// canceling with nothing in flight is a no-op
	require.NoError(t, h.coach.Cancel())
}

func TestCancel_FromIdle(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.completer.Gate = make(chan struct{})
	defer close(h.completer.Gate)

	require.NoError(t, h.coach.SubmitText("typed question"))
	require.NoError(t, h.coach.Cancel())

	snap := h.snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.CaptureActive)
	assert.Equal(t, 0, h.store.Len())
}

func TestCompletionFailure_AppendsErrorTurn(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "auth",
			err:  &completion.ExhaustedError{AuthFailed: true, Failures: []completion.CandidateFailure{{Model: "a", StatusCode: 401, Auth: true}}},
			want: "API key",
		},
		{
			name: "outage",
			err:  &completion.ExhaustedError{Failures: []completion.CandidateFailure{{Model: "a", StatusCode: 503}}},
			want: "none of the AI models",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOptions(), nil)
			h.completer.Err = tt.err

			require.NoError(t, h.coach.SubmitText("hello"))
			testutil.WaitForCondition(t, func() bool { return h.store.Len() == 2 }, waitTimeout)
			h.waitState(Idle)

			turns := h.store.Turns()
			assert.Equal(t, "hello", turns[0].Text)
			assert.True(t, turns[1].Error)
			assert.Contains(t, turns[1].Text, tt.want)

			errs := h.errors()
			require.Len(t, errs, 1)
			assert.True(t, completion.IsExhausted(errs[0]))
			assert.Empty(t, h.synth.Spoken())
		})
	}
}

func TestCompletionFailure_AlwaysOnKeepsListening(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.completer.Err = &completion.ExhaustedError{}

	require.NoError(t, h.coach.EnableAlwaysOn())
	h.capture.Fragment("anyone there", true)

	testutil.WaitForCondition(t, func() bool { return h.store.Len() == 2 }, waitTimeout)
	h.waitState(Listening)
	assert.True(t, h.snapshot().AlwaysOn)
	assert.True(t, h.capture.Active())
}

func TestCaptureEndedWhileSpeaking_NoRestartUntilPlaybackEnds(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	require.NoError(t, h.coach.EnableAlwaysOn())
	require.NoError(t, h.coach.SubmitText("explain tides"))
	h.waitState(Speaking)
	id := h.playing()

	// stopping capture for playback delivered an Ended while speaking
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.capture.Starts())
	assert.False(t, h.capture.Active())

	require.True(t, h.synth.Finish(id))
	h.waitState(Listening)
	testutil.WaitForCondition(t, func() bool { return h.capture.Starts() == 2 }, waitTimeout)
}

func TestNoSpeech_RestartsSilently(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	require.NoError(t, h.coach.EnableAlwaysOn())

	require.True(t, h.capture.Fail(capture.NoSpeech))
	testutil.WaitForCondition(t, func() bool { return h.capture.Starts() == 2 }, waitTimeout)

	snap := h.snapshot()
	assert.Equal(t, Listening, snap.State)
	assert.True(t, snap.AlwaysOn)
	assert.Empty(t, h.errors())
}

func TestFatalCaptureError_DisablesAlwaysOn(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	require.NoError(t, h.coach.EnableAlwaysOn())

	require.True(t, h.capture.Fail(capture.NotAllowed))
	h.waitState(Idle)
	time.Sleep(30 * time.Millisecond)

	assert.False(t, h.snapshot().AlwaysOn)
	assert.Equal(t, 1, h.capture.Starts())

	errs := h.errors()
	require.Len(t, errs, 1)
	var ce *CaptureError
	require.ErrorAs(t, errs[0], &ce)
	assert.Equal(t, capture.NotAllowed, ce.Kind)
}

func TestCaptureUnsupported_FallsBackToText(t *testing.T) {
	opts := testOptions()
	opts.AutoSpeak = false
	h := newHarness(t, opts, nil)
	h.capture.StartError = capture.ErrUnsupported

	assert.ErrorIs(t, h.coach.EnableAlwaysOn(), capture.ErrUnsupported)
	assert.ErrorIs(t, h.coach.EnableAlwaysOn(), capture.ErrUnsupported)
	assert.ErrorIs(t, h.coach.StartTalking(), capture.ErrUnsupported)
	snap := h.snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.AlwaysOn)
	assert.Len(t, h.errors(), 1, "unsupported capture is reported once")

	require.NoError(t, h.coach.SubmitText("typed instead"))
	testutil.WaitForCondition(t, func() bool { return h.store.Len() == 2 }, waitTimeout)
}

func TestPlaybackUnsupported_DisablesAutoSpeak(t *testing.T) {
	h := newHarness(t, testOptions(), playback.NewUnsupported())

	require.NoError(t, h.coach.SubmitText("one"))
	testutil.WaitForCondition(t, func() bool { return len(h.errors()) == 1 }, waitTimeout)
	h.waitState(Idle)
	assert.ErrorIs(t, h.errors()[0], playback.ErrUnsupported)
	assert.False(t, h.snapshot().AutoSpeak)

	require.NoError(t, h.coach.SubmitText("two"))
	testutil.WaitForCondition(t, func() bool { return h.store.Len() == 4 }, waitTimeout)
	h.waitState(Idle)
	assert.Len(t, h.errors(), 1)
}

func TestStopSpeaking(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	require.NoError(t, h.coach.EnableAlwaysOn())
	require.NoError(t, h.coach.SubmitText("long story please"))
	h.waitState(Speaking)
	h.playing()

	require.NoError(t, h.coach.StopSpeaking())
	snap := h.snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.AlwaysOn)
	testutil.WaitForCondition(t, func() bool { return len(h.synth.Playing()) == 0 }, waitTimeout)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, h.capture.Starts())

	// not speaking: nothing to stop
	require.NoError(t, h.coach.StopSpeaking())
}

func TestDisableAlwaysOn_AbortsCompletion(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.completer.Gate = make(chan struct{})

	require.NoError(t, h.coach.EnableAlwaysOn())
	require.NoError(t, h.coach.SubmitText("question"))
	require.NoError(t, h.coach.DisableAlwaysOn())

	snap := h.snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.False(t, snap.CaptureActive)

	close(h.completer.Gate)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.store.Len())
	assert.Empty(t, h.synth.Spoken())
}

func TestFragmentsWhileAwaiting_AreDropped(t *testing.T) {
	opts := testOptions()
	opts.AutoSpeak = false
	h := newHarness(t, opts, nil)
	h.completer.Gate = make(chan struct{})

	require.NoError(t, h.coach.EnableAlwaysOn())
	require.NoError(t, h.coach.SubmitText("first"))
	require.True(t, h.capture.Fragment("and another thing", true))
	time.Sleep(10 * opts.SilenceTimeout)
	assert.Len(t, h.completer.Calls(), 1)
	assert.Empty(t, h.snapshot().Display)

	close(h.completer.Gate)
	h.waitState(Listening)
	assert.Empty(t, h.snapshot().Display)

	time.Sleep(10 * opts.SilenceTimeout)
	assert.Len(t, h.completer.Calls(), 1)

	require.True(t, h.capture.Fragment("thanks", true))
	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 2 }, waitTimeout)
	assert.Equal(t, "thanks", h.completer.Calls()[1].Text)
}

func TestFragmentsWhileAwaiting_NotPrependedAfterReply(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	require.NoError(t, h.coach.EnableAlwaysOn())
	require.True(t, h.capture.Fragment("what is gravity", true))
	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 1 }, waitTimeout)
	h.capture.Fragment("um", true)

	h.synth.Finish(h.playing())
	h.waitState(Listening)
	testutil.WaitForCondition(t, h.capture.Active, waitTimeout)

	require.True(t, h.capture.Fragment("thanks", true))
	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 2 }, waitTimeout)
	assert.Equal(t, "what is gravity", h.completer.Calls()[0].Text)
	assert.Equal(t, "thanks", h.completer.Calls()[1].Text)
}

func TestHistoryWindow(t *testing.T) {
	opts := testOptions()
	opts.HistoryWindow = 2
	opts.AutoSpeak = false
	h := newHarness(t, opts, nil)

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		_, err := h.store.Append(ctx, conversation.User, text)
		require.NoError(t, err)
	}

	require.NoError(t, h.coach.SubmitText("d"))
	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 1 }, waitTimeout)

	history := h.completer.Calls()[0].History
	require.Len(t, history, 2)
	assert.Equal(t, "b", history[0].Text)
	assert.Equal(t, "c", history[1].Text)
}

// Failure messages in the log do not take slots in the history window.
func TestHistoryWindow_SkipsErrorTurns(t *testing.T) {
	opts := testOptions()
	opts.HistoryWindow = 2
	opts.AutoSpeak = false
	h := newHarness(t, opts, nil)

	ctx := context.Background()
	_, err := h.store.Append(ctx, conversation.User, "a")
	require.NoError(t, err)
	_, err = h.store.Append(ctx, conversation.Assistant, "b")
	require.NoError(t, err)
	_, err = h.store.AppendError(ctx, "completion failed")
	require.NoError(t, err)

	require.NoError(t, h.coach.SubmitText("d"))
	testutil.WaitForCondition(t, func() bool { return len(h.completer.Calls()) == 1 }, waitTimeout)

	history := h.completer.Calls()[0].History
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].Text)
	assert.Equal(t, "b", history[1].Text)
}

func TestUpdateOptions(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	opts := testOptions()
	opts.AutoSpeak = false
	opts.ReplaceLastWord = true
	require.NoError(t, h.coach.UpdateOptions(opts))

	require.NoError(t, h.coach.StartTalking())
	h.capture.Fragment("I like", true)
	h.capture.Fragment("likes apples", false)
	testutil.WaitForCondition(t, func() bool { return h.snapshot().Display == "I likes apples" }, waitTimeout)

	require.NoError(t, h.coach.Send())
	h.waitState(Idle)
	assert.Equal(t, "I like", h.completer.Calls()[0].Text)
	assert.Empty(t, h.synth.Spoken())
}

func TestClear(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	_, err := h.store.Append(context.Background(), conversation.User, "old")
	require.NoError(t, err)

	require.NoError(t, h.coach.Clear())
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.snapshot().Turns)
}

func TestClose(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	require.NoError(t, h.coach.EnableAlwaysOn())

	require.NoError(t, h.coach.Close())
	assert.False(t, h.capture.Active())
	assert.ErrorIs(t, h.coach.EnableAlwaysOn(), ErrClosed)
	_, err := h.coach.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.coach.Close())
}

type panickyCapture struct {
	*testutil.MockCapture
}

func (panickyCapture) Stop() error { panic("device gone") }

func TestTeardown_StepsAreIndependent(t *testing.T) {
	synth := testutil.NewMockSynthesizer()
	synth.Manual = true
	player := playback.NewPlayer(synth, playback.Options{})
	defer player.Close()
	store, err := conversation.Open(context.Background(), nil, "")
	require.NoError(t, err)
	completer := testutil.NewMockCompleter("reply")
	completer.Gate = make(chan struct{})
	defer close(completer.Gate)

	c, err := New(Config{
		Capture:   panickyCapture{testutil.NewMockCapture()},
		Speaker:   player,
		Completer: completer,
		Store:     store,
		Options:   testOptions(),
	})
	require.NoError(t, err)
	go c.Run(context.Background())

	require.NoError(t, c.SubmitText("question"))
	err = c.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop capture")

	// the completion was still aborted
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.Len())
}

func TestFailureMessage(t *testing.T) {
	assert.Contains(t, failureMessage(completion.ErrNoCandidates), "completion.models")
	assert.Contains(t, failureMessage(completion.ErrMissingCredential), "API key")
	assert.Contains(t, failureMessage(errors.New("boom")), "boom")
}
