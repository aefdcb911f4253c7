package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/language"
)

func formatLanguageLabel(cfg *config.Config) string {
	if cfg.General.Locale == "" {
		return fmt.Sprintf("Language (from system: %s)", language.FromEnv())
	}
	return fmt.Sprintf("Language (%s)", language.FromCode(cfg.General.Locale).Name)
}

func formatCompletionLabel(cfg *config.Config) string {
	key := "no API key"
	if cfg.CompletionAPIKey() != "" {
		key = "key set"
	}
	return fmt.Sprintf("AI Models (%d candidates, %s)", len(cfg.Completion.Models), key)
}

func formatCaptureLabel(cfg *config.Config) string {
	return fmt.Sprintf("Speech Recognition (%s)", cfg.Capture.Backend)
}

func formatPlaybackLabel(cfg *config.Config) string {
	auto := "manual"
	if cfg.Playback.AutoSpeak {
		auto = "auto-speak"
	}
	return fmt.Sprintf("Speech Playback (%s, %s)", cfg.Playback.Backend, auto)
}

func formatStorageLabel(cfg *config.Config) string {
	return fmt.Sprintf("History Storage (%s)", cfg.Storage.Backend)
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (disabled)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

type summaryLine struct {
	label string
	value string
}

func summaryLines(cfg *config.Config) []summaryLine {
	lines := []summaryLine{
		{"Language", language.Label(cfg.Locale())},
		{"Models", strings.Join(cfg.Completion.Models, " -> ")},
		{"API key", maskAPIKey(cfg.CompletionAPIKey())},
		{"Recognition", cfg.Capture.Backend},
	}
	if cfg.Capture.Backend == "deepgram" {
		lines = append(lines, summaryLine{"Deepgram key", maskAPIKey(cfg.CaptureAPIKey())})
	}
	lines = append(lines,
		summaryLine{"Playback", fmt.Sprintf("%s (auto-speak %s)", cfg.Playback.Backend, onOff(cfg.Playback.AutoSpeak))},
		summaryLine{"Storage", cfg.Storage.Backend},
	)
	if cfg.UsesBridge() {
		lines = append(lines, summaryLine{"Bridge", cfg.Bridge.Listen})
	}
	if cfg.Notifications.Enabled {
		lines = append(lines, summaryLine{"Notifications", cfg.Notifications.Type})
	} else {
		lines = append(lines, summaryLine{"Notifications", "disabled"})
	}
	return lines
}

// editLanguage picks the coaching locale
func editLanguage(cfg *config.Config) error {
	locale := cfg.General.Locale
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Coaching Language").
				Description("Used for speech recognition and for choosing a voice").
				Options(languageOptions(locale)...).
				Height(12).
				Value(&locale),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.General.Locale = locale
	return nil
}

func languageOptions(current string) []huh.Option[string] {
	autoLabel := fmt.Sprintf("From system (%s)", language.FromEnv())
	if current == "" {
		autoLabel += " (current)"
	}
	options := []huh.Option[string]{huh.NewOption(autoLabel, "")}

	for _, lang := range language.List() {
		label := fmt.Sprintf("%s - %s (%s)", lang.Name, lang.NativeName, lang.Code)
		if language.SameLocale(lang.Code, current) {
			label += " (current)"
		}
		options = append(options, huh.NewOption(label, lang.Code))
	}
	return options
}

// editCompletion sets the OpenAI-compatible endpoint, key and candidate models
func editCompletion(cfg *config.Config) error {
	apiKey := cfg.Completion.APIKey
	baseURL := cfg.Completion.BaseURL
	models := strings.Join(cfg.Completion.Models, ", ")

	keyDesc := "Stored in the config file. Leave empty to use HYPRCOACH_API_KEY or OPENROUTER_API_KEY."
	if apiKey != "" {
		keyDesc = fmt.Sprintf("Current: %s. %s", maskAPIKey(apiKey), keyDesc)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Base URL").
				Description("Any OpenAI-compatible chat completions endpoint").
				Placeholder("https://openrouter.ai/api/v1").
				Value(&baseURL),
			huh.NewInput().
				Title("API Key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewText().
				Title("Models").
				Description("Comma separated, tried in order until one answers").
				Value(&models).
				Validate(func(s string) error {
					if len(parseList(s)) == 0 {
						return fmt.Errorf("at least one model is required")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Completion.APIKey = strings.TrimSpace(apiKey)
	cfg.Completion.BaseURL = strings.TrimSpace(baseURL)
	cfg.Completion.Models = parseList(models)
	return nil
}

// editCapture chooses where speech recognition runs
func editCapture(cfg *config.Config) error {
	backend := cfg.Capture.Backend
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Speech Recognition").
				Description("How your voice is turned into text").
				Options(
					huh.NewOption("Deepgram live streaming (pw-record + API key)", "deepgram"),
					huh.NewOption("Browser bridge (Web Speech API)", "bridge"),
					huh.NewOption("None (type your messages)", "none"),
				).
				Value(&backend),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Capture.Backend = backend

	if backend != "deepgram" {
		return nil
	}

	apiKey := cfg.Capture.APIKey
	model := cfg.Capture.Model
	keyForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Deepgram API Key").
				Description("Leave empty to use DEEPGRAM_API_KEY").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Deepgram Model").
				Placeholder("nova-3").
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := keyForm.Run(); err != nil {
		return err
	}
	cfg.Capture.APIKey = strings.TrimSpace(apiKey)
	cfg.Capture.Model = strings.TrimSpace(model)
	return nil
}

// editPlayback chooses the synthesizer and how replies are spoken
func editPlayback(cfg *config.Config) error {
	backend := cfg.Playback.Backend
	autoSpeak := cfg.Playback.AutoSpeak
	rate := strconv.Itoa(cfg.Playback.Rate)
	voice := cfg.Playback.Voice

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Speech Playback").
				Options(
					huh.NewOption("espeak-ng", "espeak"),
					huh.NewOption("Browser bridge (speechSynthesis)", "bridge"),
					huh.NewOption("None (text only)", "none"),
				).
				Value(&backend),
			huh.NewConfirm().
				Title("Speak replies automatically?").
				Value(&autoSpeak),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Voice").
				Description("Exact voice name; leave empty to pick one for your language").
				Value(&voice),
			huh.NewInput().
				Title("Speaking Rate (words per minute)").
				Placeholder("170").
				Value(&rate).
				Validate(validatePositiveInt),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Playback.Backend = backend
	cfg.Playback.AutoSpeak = autoSpeak
	cfg.Playback.Voice = strings.TrimSpace(voice)
	cfg.Playback.Rate, _ = strconv.Atoi(strings.TrimSpace(rate))
	return nil
}

// editStorage chooses where the conversation history is kept
func editStorage(cfg *config.Config) error {
	backend := cfg.Storage.Backend
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("History Storage").
				Description("Where the conversation is kept between sessions").
				Options(
					huh.NewOption("Files in the cache directory", "file"),
					huh.NewOption("SQLite database", "sqlite"),
					huh.NewOption("Redis", "redis"),
					huh.NewOption("Memory (forget on exit)", "memory"),
				).
				Value(&backend),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Storage.Backend = backend

	var fields []huh.Field
	path := cfg.Storage.Path
	addr := cfg.Storage.RedisAddr
	switch backend {
	case "file", "sqlite":
		fields = append(fields, huh.NewInput().
			Title("Path").
			Description("Leave empty for the default location under ~/.cache/hyprcoach").
			Value(&path))
	case "redis":
		fields = append(fields, huh.NewInput().
			Title("Redis Address").
			Placeholder("localhost:6379").
			Value(&addr).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("address is required")
				}
				return nil
			}))
	default:
		return nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).WithTheme(getTheme()).Run(); err != nil {
		return err
	}
	cfg.Storage.Path = strings.TrimSpace(path)
	cfg.Storage.RedisAddr = strings.TrimSpace(addr)
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Announce always-on mode changes, replies and errors").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = notifType
	return nil
}

// editAdvanced covers turn-taking timings and context size
func editAdvanced(cfg *config.Config) error {
	silence := cfg.Capture.SilenceTimeout.String()
	restart := cfg.Capture.RestartDelay.String()
	noSpeech := cfg.Capture.NoSpeechTimeout.String()
	window := strconv.Itoa(cfg.Completion.HistoryWindow)
	replaceLastWord := cfg.Capture.ReplaceLastWord
	listen := cfg.Bridge.Listen

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Silence Timeout").
				Description("Pause that ends your turn in always-on mode").
				Placeholder("1.5s").
				Value(&silence).
				Validate(validateDuration),
			huh.NewInput().
				Title("Restart Delay").
				Description("Wait before listening again after a session ends").
				Placeholder("100ms").
				Value(&restart).
				Validate(validateDuration),
			huh.NewInput().
				Title("No-speech Timeout").
				Placeholder("8s").
				Value(&noSpeech).
				Validate(validateDuration),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("History Window").
				Description("How many earlier turns the model sees").
				Value(&window).
				Validate(validatePositiveInt),
			huh.NewConfirm().
				Title("Replace the last word on corrections?").
				Description("Some recognisers resend a corrected last word as a new final result").
				Value(&replaceLastWord),
			huh.NewInput().
				Title("Bridge Listen Address").
				Placeholder("127.0.0.1:7788").
				Value(&listen),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Capture.SilenceTimeout, _ = time.ParseDuration(strings.TrimSpace(silence))
	cfg.Capture.RestartDelay, _ = time.ParseDuration(strings.TrimSpace(restart))
	cfg.Capture.NoSpeechTimeout, _ = time.ParseDuration(strings.TrimSpace(noSpeech))
	cfg.Completion.HistoryWindow, _ = strconv.Atoi(strings.TrimSpace(window))
	cfg.Capture.ReplaceLastWord = replaceLastWord
	cfg.Bridge.Listen = strings.TrimSpace(listen)
	return nil
}

func maskAPIKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// parseList splits comma or newline separated values, dropping blanks
func parseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("use a duration like 1.5s or 200ms")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
