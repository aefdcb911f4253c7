package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 16000, config.SampleRate)
	assert.Equal(t, 1, config.Channels)
	assert.Equal(t, "s16", config.Format)
	assert.Equal(t, 8192, config.BufferSize)
	assert.Equal(t, "", config.Device)
	assert.Equal(t, 30, config.ChannelBufferSize)
	assert.Equal(t, "pw-record", config.Command)
}

func TestNewPipeWire(t *testing.T) {
	r := NewPipeWire(Config{SampleRate: 8000})
	assert.False(t, r.IsRecording())
	assert.Equal(t, "pw-record", r.config.Command)
	assert.Equal(t, 8000, r.config.SampleRate)

	var _ Recorder = r
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"invalid sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative sample rate", func(c *Config) { c.SampleRate = -1 }, true},
		{"invalid channels", func(c *Config) { c.Channels = 0 }, true},
		{"invalid buffer size", func(c *Config) { c.BufferSize = 0 }, true},
		{"invalid channel buffer", func(c *Config) { c.ChannelBufferSize = 0 }, true},
		{"empty format", func(c *Config) { c.Format = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := NewPipeWire(cfg).validateConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t,
		[]string{"--format", "s16", "--rate", "16000", "--channels", "1", "-"},
		NewPipeWire(cfg).buildArgs())

	cfg.Device = "alsa_input.usb"
	cfg.SampleRate = 48000
	cfg.Channels = 2
	assert.Equal(t,
		[]string{"--format", "s16", "--rate", "48000", "--channels", "2", "--target", "alsa_input.usb", "-"},
		NewPipeWire(cfg).buildArgs())
}

func TestStart_MissingBinary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "hyprcoach-no-such-recorder"
	_, _, err := NewPipeWire(cfg).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// fakeRecorder writes a shell script that prints audio bytes then exits or idles.
func fakeRecorder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-record")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCaptureLoop_StreamsFramesUntilEOF(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = fakeRecorder(t, "printf 'abcdefgh'")
	r := NewPipeWire(cfg)

	frames, errs, err := r.Start(context.Background())
	require.NoError(t, err)

	var got []byte
	timeout := time.After(5 * time.Second)
	for frames != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			got = append(got, f.Data...)
		case <-timeout:
			t.Fatal("frames channel never closed")
		}
	}
	r.Wait()

	assert.Equal(t, "abcdefgh", string(got))
	assert.False(t, r.IsRecording())
	_, open := <-errs
	assert.False(t, open)
}

func TestStop_EndsLongRunningRecorder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = fakeRecorder(t, "while true; do printf 'xx'; sleep 0.05; done")
	r := NewPipeWire(cfg)

	frames, _, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, r.IsRecording())

	_, _, err = r.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	r.Stop()
	done := make(chan struct{})
	go func() {
		for range frames {
		}
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
	assert.False(t, r.IsRecording())

	// stopping twice is harmless
	r.Stop()
}
