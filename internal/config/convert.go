package config

import (
	"os"

	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/language"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/recording"
	"github.com/leonardotrapani/hyprcoach/internal/storage"
	"github.com/leonardotrapani/hyprcoach/internal/transcriber"
)

// completion credentials are looked up in this order after the config file
var completionKeyEnv = []string{"HYPRCOACH_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"}

const captureKeyEnv = "DEEPGRAM_API_KEY"

// Locale returns general.locale, or the environment locale when unset.
func (c *Config) Locale() string {
	if n := language.Normalize(c.General.Locale); n != "" {
		return n
	}
	return language.FromEnv()
}

func (c *Config) CompletionAPIKey() string {
	if c.Completion.APIKey != "" {
		return c.Completion.APIKey
	}
	for _, env := range completionKeyEnv {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) CaptureAPIKey() string {
	if c.Capture.APIKey != "" {
		return c.Capture.APIKey
	}
	return os.Getenv(captureKeyEnv)
}

func (c *Config) ToCompletionConfig() completion.Config {
	return completion.Config{
		BaseURL:       c.Completion.BaseURL,
		APIKey:        c.CompletionAPIKey(),
		Models:        append([]string(nil), c.Completion.Models...),
		Temperature:   float32(c.Completion.Temperature),
		MaxTokens:     c.Completion.MaxTokens,
		SystemPrompt:  c.Completion.SystemPrompt,
		HistoryWindow: c.Completion.HistoryWindow,
	}
}

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Capture.Recording.SampleRate,
		Channels:          c.Capture.Recording.Channels,
		Format:            c.Capture.Recording.Format,
		BufferSize:        c.Capture.Recording.BufferSize,
		Device:            c.Capture.Recording.Device,
		ChannelBufferSize: c.Capture.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToDeepgramConfig() transcriber.DeepgramConfig {
	return transcriber.DeepgramConfig{
		URL:        c.Capture.URL,
		APIKey:     c.CaptureAPIKey(),
		Model:      c.Capture.Model,
		SampleRate: c.Capture.Recording.SampleRate,
		Keywords:   append([]string(nil), c.Capture.Keywords...),
	}
}

func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		Backend:   c.Storage.Backend,
		Path:      c.Storage.Path,
		RedisAddr: c.Storage.RedisAddr,
		RedisDB:   c.Storage.RedisDB,
		Password:  c.Storage.RedisPassword,
	}
}

func (c *Config) ToPlayerOptions() playback.Options {
	return playback.Options{
		Locale:     c.Locale(),
		Voice:      c.Playback.Voice,
		VoiceHints: append([]string(nil), c.Playback.VoiceHints...),
		Rate:       c.Playback.Rate,
	}
}
