package config

import (
	"fmt"
	"strings"

	"github.com/leonardotrapani/hyprcoach/internal/language"
)

func (c *Config) Validate() error {
	if !language.IsValid(c.General.Locale) {
		return fmt.Errorf("invalid general.locale: %s (use a BCP 47 tag like 'en-US' or leave empty)", c.General.Locale)
	}

	if len(c.Completion.Models) == 0 {
		return fmt.Errorf("invalid completion.models: empty (must list at least one model)")
	}
	for i, m := range c.Completion.Models {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("invalid completion.models[%d]: empty", i)
		}
	}
	if c.Completion.BaseURL == "" {
		return fmt.Errorf("invalid completion.base_url: empty")
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("invalid completion.temperature: %v (must be between 0 and 2)", c.Completion.Temperature)
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("invalid completion.max_tokens: %d", c.Completion.MaxTokens)
	}
	if c.Completion.HistoryWindow <= 0 {
		return fmt.Errorf("invalid completion.history_window: %d", c.Completion.HistoryWindow)
	}
	if c.CompletionAPIKey() == "" {
		return fmt.Errorf("completion API key required: not found in config (completion.api_key) or environment variable (%s)",
			strings.Join(completionKeyEnv, ", "))
	}

	switch c.Capture.Backend {
	case "deepgram":
		if c.CaptureAPIKey() == "" {
			return fmt.Errorf("Deepgram API key required: not found in config (capture.api_key) or environment variable (%s)", captureKeyEnv)
		}
		if c.Capture.Model == "" {
			return fmt.Errorf("invalid capture.model: empty")
		}
		if err := c.validateRecording(); err != nil {
			return err
		}
	case "bridge", "none":
	default:
		return fmt.Errorf("invalid capture.backend: %s (must be deepgram, bridge, or none)", c.Capture.Backend)
	}
	if c.Capture.SilenceTimeout <= 0 {
		return fmt.Errorf("invalid capture.silence_timeout: %v", c.Capture.SilenceTimeout)
	}
	if c.Capture.RestartDelay < 0 {
		return fmt.Errorf("invalid capture.restart_delay: %v", c.Capture.RestartDelay)
	}
	if c.Capture.NoSpeechTimeout <= 0 {
		return fmt.Errorf("invalid capture.no_speech_timeout: %v", c.Capture.NoSpeechTimeout)
	}

	switch c.Playback.Backend {
	case "espeak", "bridge", "none":
	default:
		return fmt.Errorf("invalid playback.backend: %s (must be espeak, bridge, or none)", c.Playback.Backend)
	}
	if c.Playback.Rate < 0 {
		return fmt.Errorf("invalid playback.rate: %d", c.Playback.Rate)
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr required when storage.backend = redis")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s (must be file, redis, sqlite, or memory)", c.Storage.Backend)
	}

	if c.UsesBridge() && c.Bridge.Listen == "" {
		return fmt.Errorf("bridge.listen required when capture or playback backend is bridge")
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

func (c *Config) validateRecording() error {
	r := c.Capture.Recording
	if r.SampleRate <= 0 {
		return fmt.Errorf("invalid capture.recording.sample_rate: %d", r.SampleRate)
	}
	if r.Channels <= 0 {
		return fmt.Errorf("invalid capture.recording.channels: %d", r.Channels)
	}
	if r.BufferSize <= 0 {
		return fmt.Errorf("invalid capture.recording.buffer_size: %d", r.BufferSize)
	}
	if r.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid capture.recording.channel_buffer_size: %d", r.ChannelBufferSize)
	}
	if r.Format == "" {
		return fmt.Errorf("invalid capture.recording.format: empty")
	}
	return nil
}

// UsesBridge reports whether either backend needs the browser bridge.
func (c *Config) UsesBridge() bool {
	return c.Capture.Backend == "bridge" || c.Playback.Backend == "bridge"
}
