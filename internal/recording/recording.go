package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyRecording is returned by Start while a capture is running.
var ErrAlreadyRecording = errors.New("already recording")

type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Recorder produces raw PCM frames from a microphone.
type Recorder interface {
	Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error)
	Stop()
	IsRecording() bool
}

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
	// Command is the capture binary; pw-record when empty.
	Command string
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        8192,
		Device:            "",
		ChannelBufferSize: 30,
		Command:           "pw-record",
	}
}

// PipeWire records through a pw-record child process writing to stdout.
type PipeWire struct {
	config    Config
	recording atomic.Bool

	mu     sync.Mutex // guards cmd and cancel
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func NewPipeWire(config Config) *PipeWire {
	if config.Command == "" {
		config.Command = "pw-record"
	}
	return &PipeWire{config: config}
}

func (r *PipeWire) IsRecording() bool {
	return r.recording.Load()
}

func (r *PipeWire) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if err := r.validateConfig(); err != nil {
		return nil, nil, err
	}
	if _, err := exec.LookPath(r.config.Command); err != nil {
		return nil, nil, fmt.Errorf("%s not found: %w (install pipewire)", r.config.Command, err)
	}
	if !r.recording.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyRecording
	}

	recordingCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan AudioFrame, r.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.captureLoop(recordingCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

func (r *PipeWire) Stop() {
	r.requestCancel()
}

// Wait blocks until the capture goroutine and child process are gone.
func (r *PipeWire) Wait() {
	r.wg.Wait()
}

func (r *PipeWire) captureLoop(ctx context.Context, frameCh chan<- AudioFrame, errCh chan<- error) {
	defer func() {
		r.mu.Lock()
		if r.cmd != nil {
			_ = r.cmd.Wait()
			r.cmd = nil
		}
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()

		close(frameCh)
		close(errCh)
		r.recording.Store(false)
		r.wg.Done()
	}()

	cmd := exec.CommandContext(ctx, r.config.Command, r.buildArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.emitErr(errCh, fmt.Errorf("create stderr pipe: %w", err))
		return
	}
	if err := cmd.Start(); err != nil {
		r.emitErr(errCh, fmt.Errorf("start %s: %w", r.config.Command, err))
		return
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug().Str("source", r.config.Command).Msg("Recording stderr: " + scanner.Text())
		}
	}()

	buffer := make([]byte, r.config.BufferSize)
	var dropped int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])

			select {
			case frameCh <- AudioFrame{Data: data, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			default:
				dropped++
				if time.Since(lastDropLog) > time.Second {
					log.Warn().Int("dropped", dropped).Msg("Recording: dropping frames due to backpressure")
					lastDropLog = time.Now()
					dropped = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				return
			}
			r.emitErr(errCh, fmt.Errorf("read audio: %w", readErr))
			return
		}
	}
}

func (r *PipeWire) requestCancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *PipeWire) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
	log.Error().Err(err).Msg("Recording error")
}

func (r *PipeWire) buildArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return append(args, "-")
}

func (r *PipeWire) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	if r.config.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
