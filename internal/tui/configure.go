package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/muesli/termenv"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionLanguage      ConfigSection = "language"
	SectionCompletion    ConfigSection = "completion"
	SectionCapture       ConfigSection = "capture"
	SectionPlayback      ConfigSection = "playback"
	SectionStorage       ConfigSection = "storage"
	SectionNotifications ConfigSection = "notifications"
	SectionAdvanced      ConfigSection = "advanced"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the TUI configuration wizard. The config is edited in place
// and only returned when the user saves.
func Run(existingConfig *config.Config) (*ConfigureResult, error) {
	if existingConfig == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := existingConfig
	if !hasUserChanges(cfg) {
		if err := runFirstSetup(cfg); err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}
	}
	return runMenu(cfg)
}

// hasUserChanges detects a config that was set up before
func hasUserChanges(cfg *config.Config) bool {
	return cfg.Completion.APIKey != "" || cfg.Capture.APIKey != "" || cfg.General.Locale != ""
}

// runFirstSetup walks through the settings every learner needs once.
func runFirstSetup(cfg *config.Config) error {
	clearScreen()
	fmt.Println(Logo())
	fmt.Println(StyleMuted.Render("Let's set up your conversation coach."))
	fmt.Println()

	steps := []func(*config.Config) error{editLanguage, editCompletion, editCapture, editPlayback}
	for _, step := range steps {
		if err := step(cfg); err != nil {
			return err
		}
	}
	return nil
}

func runMenu(cfg *config.Config) (*ConfigureResult, error) {
	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render(err.Error()))
				waitForEnter()
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}
		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil
		default:
			edit, ok := sectionEditors[section]
			if !ok {
				continue
			}
			// esc inside a section drops back to the menu
			if err := edit(cfg); err != nil {
				continue
			}
		}
	}
}

var sectionEditors = map[ConfigSection]func(*config.Config) error{
	SectionLanguage:      editLanguage,
	SectionCompletion:    editCompletion,
	SectionCapture:       editCapture,
	SectionPlayback:      editPlayback,
	SectionStorage:       editStorage,
	SectionNotifications: editNotifications,
	SectionAdvanced:      editAdvanced,
}

func sectionOptions(cfg *config.Config) []huh.Option[ConfigSection] {
	return []huh.Option[ConfigSection]{
		huh.NewOption(formatLanguageLabel(cfg), SectionLanguage),
		huh.NewOption(formatCompletionLabel(cfg), SectionCompletion),
		huh.NewOption(formatCaptureLabel(cfg), SectionCapture),
		huh.NewOption(formatPlaybackLabel(cfg), SectionPlayback),
		huh.NewOption(formatStorageLabel(cfg), SectionStorage),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption("Advanced Settings", SectionAdvanced),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(sectionOptions(cfg)...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	for _, line := range summaryLines(cfg) {
		fmt.Printf("  %s %s\n", StyleLabel.Render(line.label+":"), line.value)
	}
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func waitForEnter() {
	_ = huh.NewForm(
		huh.NewGroup(huh.NewNote().Title("Press enter to go back")),
	).WithTheme(getTheme()).Run()
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
