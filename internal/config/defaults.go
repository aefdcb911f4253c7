package config

import (
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/capture"
	"github.com/leonardotrapani/hyprcoach/internal/completion"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/silence"
)

const DefaultBridgeListen = "127.0.0.1:7788"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			BaseURL:       completion.DefaultBaseURL,
			Models:        append([]string(nil), completion.DefaultModels...),
			Temperature:   0.7,
			MaxTokens:     400,
			HistoryWindow: conversation.DefaultWindow,
		},
		Capture: CaptureConfig{
			Backend:         "deepgram",
			Model:           "nova-3",
			SilenceTimeout:  silence.DefaultTimeout,
			RestartDelay:    100 * time.Millisecond,
			NoSpeechTimeout: capture.DefaultNoSpeechTimeout,
			Recording: RecordingConfig{
				SampleRate:        16000,
				Channels:          1,
				Format:            "s16",
				BufferSize:        8192,
				ChannelBufferSize: 30,
			},
		},
		Playback: PlaybackConfig{
			Backend:    "espeak",
			AutoSpeak:  true,
			VoiceHints: append([]string(nil), playback.DefaultVoiceHints...),
			Rate:       170,
		},
		Storage: StorageConfig{
			Backend: "file",
			Key:     conversation.DefaultKey,
		},
		Bridge: BridgeConfig{
			Listen: DefaultBridgeListen,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
