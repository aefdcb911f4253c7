package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/bus"
	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/coach"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	listening []bool
	replies   []string
	errors    []string
}

func (r *recordingNotifier) ListeningChanged(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listening = append(r.listening, on)
}

func (r *recordingNotifier) Reply(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
}

func (r *recordingNotifier) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingNotifier) Notify(title, message string) {}

func (r *recordingNotifier) snapshot() (listening []bool, replies, errs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.listening...), append([]string(nil), r.replies...), append([]string(nil), r.errors...)
}

type testDaemon struct {
	*Daemon
	capture   *testutil.MockCapture
	synth     *testutil.MockSynthesizer
	completer *testutil.MockCompleter
	notifier  *recordingNotifier
	cfgPath   string
}

func startDaemon(t *testing.T, cfg *config.Config) *testDaemon {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.SaveTo(cfg, cfgPath))
	mgr, err := config.NewManager(cfgPath)
	require.NoError(t, err)

	td := &testDaemon{
		capture:   testutil.NewMockCapture(),
		synth:     testutil.NewMockSynthesizer(),
		completer: testutil.NewMockCompleter("Well said! One small fix: I went, not I goed."),
		notifier:  &recordingNotifier{},
		cfgPath:   cfgPath,
	}
	td.synth.Manual = true
	td.synth.VoiceList = []playback.Voice{{Name: "English (America)", Lang: "en-US", Default: true}}
	td.Daemon = New(mgr,
		WithCapture(td.capture),
		WithSynthesizer(td.synth),
		WithCompleter(td.completer),
		WithNotifier(td.notifier),
		WithFixedLogLevel(),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- td.Run() }()

	testutil.WaitForCondition(t, func() bool {
		_, err := bus.SendCommand('v')
		return err == nil
	}, 3*time.Second)

	t.Cleanup(func() {
		bus.SendCommand('q')
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("daemon did not exit within timeout")
		}
	})
	return td
}

func send(t *testing.T, cmd byte, arg string) string {
	t.Helper()
	out, err := bus.SendCommandArg(cmd, arg)
	require.NoError(t, err)
	return out
}

func TestDaemon_TypedConversation(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())

	assert.Equal(t, "STATUS proto="+bus.ProtoVer+"\n", send(t, 'v', ""))
	assert.Equal(t, "STATUS state=idle always_on=false capture=false auto_speak=true turns=0\n", send(t, 's', ""))

	assert.Equal(t, "OK submitted\n", send(t, 'm', "Yesterday I goed to the park"))
	testutil.WaitForCondition(t, func() bool { return len(td.synth.Playing()) == 1 }, 2*time.Second)
	assert.Contains(t, send(t, 's', ""), "state=speaking")

	assert.Equal(t, "OK hushed\n", send(t, 'k', ""))
	assert.Contains(t, send(t, 's', ""), "state=idle")

	calls := td.completer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Yesterday I goed to the park", calls[0].Text)

	history := send(t, 'l', "")
	require.True(t, strings.HasPrefix(history, "HISTORY "))
	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(history, "HISTORY ")), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.User, turns[0].Role)
	assert.Equal(t, conversation.Assistant, turns[1].Role)

	testutil.WaitForCondition(t, func() bool {
		_, replies, _ := td.notifier.snapshot()
		return len(replies) == 1
	}, 2*time.Second)

	assert.Equal(t, "OK cleared\n", send(t, 'r', ""))
	assert.Contains(t, send(t, 's', ""), "turns=0")
}

func TestDaemon_AlwaysOnToggle(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())

	assert.Equal(t, "OK always_on=true\n", send(t, 'a', ""))
	assert.True(t, td.capture.Active())
	assert.Equal(t, []string{"en-US"}, td.capture.Locales())
	assert.Contains(t, send(t, 's', ""), "state=listening always_on=true capture=true")

	assert.Equal(t, "OK always_on=false\n", send(t, 'a', ""))
	assert.False(t, td.capture.Active())

	testutil.WaitForCondition(t, func() bool {
		listening, _, _ := td.notifier.snapshot()
		return len(listening) == 2
	}, 2*time.Second)
	listening, _, _ := td.notifier.snapshot()
	assert.ElementsMatch(t, []bool{true, false}, listening)
}

func TestDaemon_PushToTalk(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())

	assert.Equal(t, "ERR Nothing to send yet.\n", send(t, 'x', ""))
	assert.Equal(t, "OK talking\n", send(t, 'p', ""))
	require.True(t, td.capture.Fragment("how do I say hello", true))
	testutil.WaitForCondition(t, func() bool {
		return strings.Contains(send(t, 'x', ""), "OK sent")
	}, 2*time.Second)

	testutil.WaitForCondition(t, func() bool { return len(td.completer.Calls()) == 1 }, 2*time.Second)
	assert.Equal(t, "how do I say hello", td.completer.Calls()[0].Text)
}

func TestDaemon_CaptureFailureNotifies(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())

	send(t, 'a', "")
	require.True(t, td.capture.Fail(capture.NotAllowed))

	testutil.WaitForCondition(t, func() bool {
		_, _, errs := td.notifier.snapshot()
		return len(errs) == 1
	}, 2*time.Second)
	assert.Contains(t, send(t, 's', ""), "state=idle always_on=false")

	testutil.WaitForCondition(t, func() bool {
		listening, _, _ := td.notifier.snapshot()
		return len(listening) == 2
	}, 2*time.Second)
}

func TestDaemon_Voices(t *testing.T) {
	startDaemon(t, testutil.TestConfig())

	out := send(t, 'o', "")
	require.True(t, strings.HasPrefix(out, "VOICES "))
	var voices []playback.Voice
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(out, "VOICES ")), &voices))
	require.Len(t, voices, 1)
	assert.Equal(t, "en-US", voices[0].Lang)
}

func TestDaemon_ConfigReload(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())
	assert.Contains(t, send(t, 's', ""), "auto_speak=true")

	cfg := testutil.TestConfig()
	cfg.Playback.AutoSpeak = false
	require.NoError(t, config.SaveTo(cfg, td.cfgPath))
	require.True(t, td.configMgr.Reload())

	assert.Contains(t, send(t, 's', ""), "auto_speak=false")

	send(t, 'm', "thanks")
	testutil.WaitForCondition(t, func() bool { return len(td.completer.Calls()) == 1 }, 2*time.Second)
	testutil.WaitForCondition(t, func() bool { return strings.Contains(send(t, 's', ""), "state=idle") }, 2*time.Second)
	assert.Empty(t, td.synth.Spoken())
}

func TestDaemon_UnknownCommand(t *testing.T) {
	startDaemon(t, testutil.TestConfig())
	assert.Equal(t, "ERR unknown='z'\n", send(t, 'z', ""))
}

func TestDaemon_RefusesSecondInstance(t *testing.T) {
	td := startDaemon(t, testutil.TestConfig())

	mgr, err := config.NewManager(td.cfgPath)
	require.NoError(t, err)
	err = New(mgr).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestReloadableCompleter(t *testing.T) {
	rc := &reloadableCompleter{}
	rc.update(completion.Config{})

	_, err := rc.Complete(context.Background(), nil, "hello")
	assert.ErrorIs(t, err, completion.ErrMissingCredential)

	rc.update(completion.Config{APIKey: "k"})
	require.NotNil(t, rc.client)

	rc.update(completion.Config{})
	assert.Nil(t, rc.client)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{capture.ErrUnsupported, "type your messages"},
		{playback.ErrUnsupported, "shown as text"},
		{completion.ErrMissingCredential, "API key"},
		{coach.ErrBusy, "previous reply"},
		{&coach.CaptureError{Kind: capture.NotAllowed}, "not-allowed"},
		{errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		assert.Contains(t, errorMessage(tt.err), tt.want)
	}
}

func TestCoachOptions(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Capture.ReplaceLastWord = true
	cfg.Capture.SilenceTimeout = 2 * time.Second

	opts := coachOptions(cfg)
	assert.Equal(t, "en-US", opts.Locale)
	assert.True(t, opts.ReplaceLastWord)
	assert.True(t, opts.AutoSpeak)
	assert.Equal(t, 2*time.Second, opts.SilenceTimeout)
	assert.Equal(t, cfg.Completion.HistoryWindow, opts.HistoryWindow)
}
