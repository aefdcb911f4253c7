package testutil

import (
	"context"
	"sync"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/transcript"
)

// MockCapture implements capture.Adapter. Every session it starts ends with
// exactly one EventEnded, like the real adapters.
type MockCapture struct {
	StartError error

	mu      sync.Mutex
	active  bool
	starts  int
	stops   int
	locales []string
	events  chan capture.Event
}

func NewMockCapture() *MockCapture {
	return &MockCapture{events: make(chan capture.Event, 256)}
}

func (m *MockCapture) Start(ctx context.Context, locale string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartError != nil {
		return m.StartError
	}
	if m.active {
		return capture.ErrAlreadyActive
	}
	m.active = true
	m.starts++
	m.locales = append(m.locales, locale)
	return nil
}

func (m *MockCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.active = false
		m.stops++
		m.events <- capture.Event{Kind: capture.EventEnded}
	}
	return nil
}

func (m *MockCapture) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *MockCapture) Events() <-chan capture.Event { return m.events }

func (m *MockCapture) Close() error { return m.Stop() }

// Fragment delivers a recognition result if a session is running.
func (m *MockCapture) Fragment(text string, final bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.events <- capture.Event{Kind: capture.EventFragment, Fragment: transcript.Fragment{Text: text, Final: final}}
	return true
}

// Fail ends the running session with an error.
func (m *MockCapture) Fail(kind capture.ErrorKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.active = false
	m.events <- capture.Event{Kind: capture.EventError, Error: kind}
	m.events <- capture.Event{Kind: capture.EventEnded}
	return true
}

// End ends the running session without an error, as a recogniser timing out would.
func (m *MockCapture) End() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return false
	}
	m.active = false
	m.events <- capture.Event{Kind: capture.EventEnded}
	return true
}

func (m *MockCapture) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockCapture) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *MockCapture) Locales() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.locales...)
}

// MockSynthesizer implements playback.Synthesizer. With Manual set every
// utterance plays until Finish or Fail is called.
type MockSynthesizer struct {
	VoiceList   []playback.Voice
	VoicesError error
	SpeakError  error
	Manual      bool

	mu      sync.Mutex
	spoken  []playback.Utterance
	pending map[string]chan error
	changed chan struct{}
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{
		pending: make(map[string]chan error),
		changed: make(chan struct{}, 1),
	}
}

func (m *MockSynthesizer) Voices(ctx context.Context) ([]playback.Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.VoicesError != nil {
		return nil, m.VoicesError
	}
	return append([]playback.Voice(nil), m.VoiceList...), nil
}

func (m *MockSynthesizer) Speak(ctx context.Context, u playback.Utterance, onStart func()) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	manual := m.Manual
	speakErr := m.SpeakError
	var done chan error
	if manual {
		done = make(chan error, 1)
		m.pending[u.ID] = done
	}
	m.mu.Unlock()

	if speakErr != nil {
		return speakErr
	}
	if onStart != nil {
		onStart()
	}
	if !manual {
		return nil
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, u.ID)
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *MockSynthesizer) Close() error { return nil }

func (m *MockSynthesizer) VoicesChanged() <-chan struct{} { return m.changed }

// SetVoices replaces the voice list and announces the change.
func (m *MockSynthesizer) SetVoices(voices []playback.Voice) {
	m.mu.Lock()
	m.VoiceList = voices
	m.mu.Unlock()
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Finish completes the utterance with the given id.
func (m *MockSynthesizer) Finish(id string) bool {
	return m.release(id, nil)
}

// Fail ends the utterance with the given id with err.
func (m *MockSynthesizer) Fail(id string, err error) bool {
	return m.release(id, err)
}

func (m *MockSynthesizer) release(id string, err error) bool {
	m.mu.Lock()
	done, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if ok {
		done <- err
	}
	return ok
}

// Playing returns the ids of utterances still in progress.
func (m *MockSynthesizer) Playing() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	return ids
}

func (m *MockSynthesizer) Spoken() []playback.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]playback.Utterance(nil), m.spoken...)
}

// CompleteCall records one request to MockCompleter.
type CompleteCall struct {
	History []conversation.Turn
	Text    string
}

// MockCompleter answers completions with Reply or Err. With Gate set every
// call waits for a value on Gate (or cancellation) first.
type MockCompleter struct {
	Reply string
	Err   error
	Gate  chan struct{}

	mu    sync.Mutex
	calls []CompleteCall
}

func NewMockCompleter(reply string) *MockCompleter {
	return &MockCompleter{Reply: reply}
}

func (m *MockCompleter) Complete(ctx context.Context, history []conversation.Turn, text string) (completion.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, CompleteCall{History: history, Text: text})
	reply, replyErr, gate := m.Reply, m.Err, m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return completion.Result{}, completion.ErrCanceled
		}
	}
	if ctx.Err() != nil {
		return completion.Result{}, completion.ErrCanceled
	}
	if replyErr != nil {
		return completion.Result{}, replyErr
	}
	return completion.Result{Text: reply, Model: "mock-model", Attempts: 1}, nil
}

func (m *MockCompleter) Calls() []CompleteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompleteCall(nil), m.calls...)
}
