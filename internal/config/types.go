package config

import "time"

type Config struct {
	General       GeneralConfig       `toml:"general"`
	Completion    CompletionConfig    `toml:"completion"`
	Capture       CaptureConfig       `toml:"capture"`
	Playback      PlaybackConfig      `toml:"playback"`
	Storage       StorageConfig       `toml:"storage"`
	Bridge        BridgeConfig        `toml:"bridge"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
}

// GeneralConfig holds settings shared by capture and playback
type GeneralConfig struct {
	Locale string `toml:"locale"` // BCP 47, empty = from $LANG
}

type CompletionConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	Models        []string `toml:"models"` // tried in order
	Temperature   float64  `toml:"temperature"`
	MaxTokens     int      `toml:"max_tokens"`
	SystemPrompt  string   `toml:"system_prompt"`
	HistoryWindow int      `toml:"history_window"`
}

type CaptureConfig struct {
	Backend         string          `toml:"backend"` // "deepgram", "bridge", "none"
	APIKey          string          `toml:"api_key"`
	Model           string          `toml:"model"`
	URL             string          `toml:"url"`
	Keywords        []string        `toml:"keywords"`
	SilenceTimeout  time.Duration   `toml:"silence_timeout"`
	RestartDelay    time.Duration   `toml:"restart_delay"`
	NoSpeechTimeout time.Duration   `toml:"no_speech_timeout"`
	ReplaceLastWord bool            `toml:"replace_last_word"`
	Recording       RecordingConfig `toml:"recording"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

type PlaybackConfig struct {
	Backend    string   `toml:"backend"` // "espeak", "bridge", "none"
	AutoSpeak  bool     `toml:"auto_speak"`
	Voice      string   `toml:"voice"` // explicit voice name, skips selection
	VoiceHints []string `toml:"voice_hints"`
	Rate       int      `toml:"rate"` // words per minute
}

type StorageConfig struct {
	Backend       string `toml:"backend"` // "file", "redis", "sqlite", "memory"
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisDB       int    `toml:"redis_db"`
	RedisPassword string `toml:"redis_password"`
	Key           string `toml:"key"`
}

type BridgeConfig struct {
	Listen string `toml:"listen"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type LoggingConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}
