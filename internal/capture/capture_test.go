package capture_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/recording"
	"github.com/leonardotrapani/hyprcoach/internal/testutil"
	"github.com/leonardotrapani/hyprcoach/internal/transcriber"
	"github.com/leonardotrapani/hyprcoach/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreaming(t *testing.T, rec *testutil.MockRecorder, stt *testutil.MockStreamingAdapter, noSpeech time.Duration) *capture.Streaming {
	t.Helper()
	s := capture.NewStreaming(capture.StreamingConfig{
		NoSpeechTimeout: noSpeech,
		NewRecorder:     func() recording.Recorder { return rec },
		NewTranscriber:  func() transcriber.StreamingAdapter { return stt },
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func nextEvent(t *testing.T, a capture.Adapter) capture.Event {
	t.Helper()
	select {
	case ev := <-a.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no capture event")
		return capture.Event{}
	}
}

func TestErrorKind(t *testing.T) {
	assert.True(t, capture.NoSpeech.Transient())
	for _, k := range []capture.ErrorKind{capture.Aborted, capture.AudioCapture, capture.Network, capture.NotAllowed, capture.Service} {
		assert.False(t, k.Transient(), k)
		assert.Equal(t, k, capture.ParseErrorKind(string(k)))
	}
	assert.Equal(t, capture.NoSpeech, capture.ParseErrorKind("no-speech"))
	assert.Equal(t, capture.Service, capture.ParseErrorKind("language-not-supported"))
	assert.Equal(t, "ended", capture.EventEnded.String())
}

func TestUnsupported(t *testing.T) {
	u := capture.NewUnsupported()
	assert.ErrorIs(t, u.Start(context.Background(), "en-US"), capture.ErrUnsupported)
	assert.False(t, u.Active())
	assert.NoError(t, u.Stop())
	assert.NoError(t, u.Close())
}

func TestStreaming_FragmentsAndStop(t *testing.T) {
	rec := testutil.NewMockRecorder()
	stt := testutil.NewMockStreamingAdapter()
	s := newStreaming(t, rec, stt, time.Minute)

	require.NoError(t, s.Start(context.Background(), "es-ES"))
	assert.True(t, s.Active())
	assert.ErrorIs(t, s.Start(context.Background(), "es-ES"), capture.ErrAlreadyActive)

	testutil.WaitForCondition(t, func() bool { return stt.Chunks() == 1 }, time.Second)
	assert.Equal(t, "es-ES", stt.Locale())

	stt.Push(transcriber.Result{Text: "hola"})
	stt.Push(transcriber.Result{Text: "hola amigo", IsFinal: true})

	ev := nextEvent(t, s)
	assert.Equal(t, capture.EventFragment, ev.Kind)
	assert.Equal(t, transcript.Fragment{Text: "hola"}, ev.Fragment)
	ev = nextEvent(t, s)
	assert.Equal(t, transcript.Fragment{Text: "hola amigo", Final: true}, ev.Fragment)

	require.NoError(t, s.Stop())
	assert.False(t, s.Active())
	assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
	testutil.WaitForCondition(t, func() bool { return !rec.IsRecording() && stt.Closed() }, time.Second)

	require.NoError(t, s.Stop())
}

func TestStreaming_NoSpeech(t *testing.T) {
	s := newStreaming(t, testutil.NewMockRecorder(), testutil.NewMockStreamingAdapter(), 30*time.Millisecond)

	require.NoError(t, s.Start(context.Background(), "en-US"))

	ev := nextEvent(t, s)
	assert.Equal(t, capture.EventError, ev.Kind)
	assert.Equal(t, capture.NoSpeech, ev.Error)
	assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
	assert.False(t, s.Active())
}

func TestStreaming_RecorderFailure(t *testing.T) {
	rec := testutil.NewMockRecorder()
	rec.StartError = errors.New("pw-record not found")
	s := newStreaming(t, rec, testutil.NewMockStreamingAdapter(), time.Minute)

	require.NoError(t, s.Start(context.Background(), "en-US"))

	ev := nextEvent(t, s)
	assert.Equal(t, capture.AudioCapture, ev.Error)
	assert.ErrorIs(t, ev.Err, rec.StartError)
	assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
}

func TestStreaming_RecorderExit(t *testing.T) {
	rec := testutil.NewMockRecorder()
	rec.CloseFrames = true
	s := newStreaming(t, rec, testutil.NewMockStreamingAdapter(), time.Minute)

	require.NoError(t, s.Start(context.Background(), "en-US"))

	ev := nextEvent(t, s)
	assert.Equal(t, capture.EventError, ev.Kind)
	assert.Equal(t, capture.AudioCapture, ev.Error)
	assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
}

func TestStreaming_TranscriberErrors(t *testing.T) {
	tests := []struct {
		name  string
		start error
		push  error
		want  capture.ErrorKind
	}{
		{"unauthorized", &transcriber.DialError{StatusCode: 401, Err: errors.New("bad handshake")}, nil, capture.NotAllowed},
		{"dial failure", &transcriber.DialError{Err: errors.New("no route")}, nil, capture.Network},
		{"service error", nil, &transcriber.ServiceError{Type: "INVALID_AUDIO", Message: "bad"}, capture.Service},
		{"connection lost", nil, transcriber.ErrConnectionLost, capture.Network},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stt := testutil.NewMockStreamingAdapter()
			stt.StartError = tt.start
			s := newStreaming(t, testutil.NewMockRecorder(), stt, time.Minute)

			require.NoError(t, s.Start(context.Background(), "en-US"))
			if tt.push != nil {
				stt.Push(transcriber.Result{Error: tt.push})
			}

			ev := nextEvent(t, s)
			assert.Equal(t, capture.EventError, ev.Kind)
			assert.Equal(t, tt.want, ev.Error)
			assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
		})
	}
}

func TestStreaming_ResultsClosed(t *testing.T) {
	stt := testutil.NewMockStreamingAdapter()
	s := newStreaming(t, testutil.NewMockRecorder(), stt, time.Minute)

	require.NoError(t, s.Start(context.Background(), "en-US"))
	stt.Disconnect()

	ev := nextEvent(t, s)
	assert.Equal(t, capture.Network, ev.Error)
	assert.Equal(t, capture.EventEnded, nextEvent(t, s).Kind)
}

func TestStreaming_RestartAfterEnded(t *testing.T) {
	s := capture.NewStreaming(capture.StreamingConfig{
		NoSpeechTimeout: time.Minute,
		NewRecorder:     func() recording.Recorder { return testutil.NewMockRecorder() },
		NewTranscriber:  func() transcriber.StreamingAdapter { return testutil.NewMockStreamingAdapter() },
	})
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Start(context.Background(), "en-US"))
		require.NoError(t, s.Stop())
		// a fresh session may start before the old one reports Ended
		assert.False(t, s.Active())
	}

	ended := 0
	for ended < 3 {
		if nextEvent(t, s).Kind == capture.EventEnded {
			ended++
		}
	}
}

func TestStreaming_Close(t *testing.T) {
	s := newStreaming(t, testutil.NewMockRecorder(), testutil.NewMockStreamingAdapter(), time.Minute)
	require.NoError(t, s.Start(context.Background(), "en-US"))

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Error(t, s.Start(context.Background(), "en-US"))
}
