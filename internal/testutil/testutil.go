package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/recording"
	"github.com/leonardotrapani/hyprcoach/internal/transcriber"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.General.Locale = "en-US"
	cfg.Completion.APIKey = "test-api-key"
	cfg.Capture.APIKey = "test-deepgram-key"
	cfg.Storage.Backend = "memory"
	cfg.Notifications.Type = "log"
	return cfg
}

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// MockAudioFrame creates a test audio frame
func MockAudioFrame(data []byte) recording.AudioFrame {
	if data == nil {
		data = make([]byte, 1024)
		for i := range data {
			data[i] = byte(i % 256)
		}
	}

	return recording.AudioFrame{
		Data:      data,
		Timestamp: time.Now(),
	}
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// MockRecorder implements recording.Recorder for testing
type MockRecorder struct {
	Frames     []recording.AudioFrame
	StartError error
	// CloseFrames ends the frame stream after Frames are sent, as if the
	// recorder process exited.
	CloseFrames bool

	mu        sync.Mutex
	recording atomic.Bool
	stopCh    chan struct{}
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Frames: []recording.AudioFrame{MockAudioFrame(nil)},
	}
}

func (m *MockRecorder) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	if m.StartError != nil {
		return nil, nil, m.StartError
	}

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.recording.Store(true)

	frameCh := make(chan recording.AudioFrame, len(m.Frames)+1)
	errCh := make(chan error, 1)

	go func() {
		defer close(frameCh)
		defer close(errCh)

		for _, frame := range m.Frames {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case frameCh <- frame:
			}
		}
		if m.CloseFrames {
			return
		}

		// keep channel open until stopped
		select {
		case <-ctx.Done():
		case <-stopCh:
		}
	}()

	return frameCh, errCh, nil
}

func (m *MockRecorder) Stop() {
	if !m.recording.Load() {
		return
	}
	m.recording.Store(false)

	m.mu.Lock()
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()
}

func (m *MockRecorder) IsRecording() bool {
	return m.recording.Load()
}

// MockStreamingAdapter implements transcriber.StreamingAdapter for testing.
// Tests push recognition results with Push.
type MockStreamingAdapter struct {
	StartError error

	mu      sync.Mutex
	started bool
	closed  bool
	locale  string
	chunks  [][]byte
	results chan transcriber.Result
}

func NewMockStreamingAdapter() *MockStreamingAdapter {
	return &MockStreamingAdapter{results: make(chan transcriber.Result, 32)}
}

func (m *MockStreamingAdapter) Start(ctx context.Context, locale string) error {
	if m.StartError != nil {
		return m.StartError
	}
	m.mu.Lock()
	m.started = true
	m.locale = locale
	m.mu.Unlock()
	return nil
}

func (m *MockStreamingAdapter) SendChunk(audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, append([]byte(nil), audio...))
	return nil
}

func (m *MockStreamingAdapter) Results() <-chan transcriber.Result {
	return m.results
}

func (m *MockStreamingAdapter) Finalize(ctx context.Context) error { return nil }

func (m *MockStreamingAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Push delivers a recognition result to the session.
func (m *MockStreamingAdapter) Push(r transcriber.Result) {
	m.results <- r
}

// Disconnect closes the result stream, as a dropped connection would.
func (m *MockStreamingAdapter) Disconnect() {
	close(m.results)
}

func (m *MockStreamingAdapter) Locale() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locale
}

func (m *MockStreamingAdapter) Chunks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

func (m *MockStreamingAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
