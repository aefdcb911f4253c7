package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/bus"
	"github.com/leonardotrapani/hyprcoach/internal/clipboard"
	"github.com/leonardotrapani/hyprcoach/internal/config"
	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/leonardotrapani/hyprcoach/internal/daemon"
	"github.com/leonardotrapani/hyprcoach/internal/deps"
	"github.com/leonardotrapani/hyprcoach/internal/playback"
	"github.com/leonardotrapani/hyprcoach/internal/tui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hyprcoach",
		Short:         "Spoken conversation practice with an AI language coach",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to the config value")

	root.AddCommand(
		serveCmd(),
		controlCmd("toggle", "Turn always-on listening on or off", 'a', "toggle always-on mode"),
		controlCmd("talk", "Start a push-to-talk utterance", 'p', "start talking"),
		controlCmd("send", "Send the current push-to-talk utterance", 'x', "send utterance"),
		sayCmd(),
		controlCmd("hush", "Stop the reply being spoken", 'k', "stop speaking"),
		controlCmd("cancel", "Cancel the current operation", 'c', "cancel operation"),
		controlCmd("halt", "Stop listening, speaking and waiting", 'h', "halt coach"),
		controlCmd("clear", "Forget the conversation history", 'r', "clear history"),
		statusCmd(),
		historyCmd(),
		copyCmd(),
		voicesCmd(),
		controlCmd("version", "Get protocol version", 'v', "get version"),
		controlCmd("stop", "Stop the daemon", 'q', "stop daemon"),
		configureCmd(),
		doctorCmd(),
	)
	return root
}

// setupLogging points the global logger at stderr. An explicit level wins
// over the configured one.
func setupLogging(flagLevel string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(resolveLevel(flagLevel))
}

func resolveLevel(flagLevel string) zerolog.Level {
	name := flagLevel
	if name == "" {
		if cfg, err := config.Load(); err == nil {
			name = cfg.Logging.Level
		}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager("")
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := mgr.GetConfig()
			reqs := deps.Needed(cfg.Capture.Backend, cfg.Playback.Backend, cfg.Notifications.Type, cfg.Notifications.Enabled)
			for _, r := range deps.Missing(reqs) {
				log.Warn().Str("program", r.Name).Str("purpose", r.Purpose).Msg("Serve: required program not found in PATH")
			}

			var opts []daemon.Option
			if logLevel != "" {
				opts = append(opts, daemon.WithFixedLogLevel())
			}
			return daemon.New(mgr, opts...).Run()
		},
	}
}

// controlCmd builds a command that sends one letter to the daemon and
// prints the reply.
func controlCmd(use, short string, letter byte, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request(letter, "", action)
			if err != nil {
				return err
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Send a typed message to the coach",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request('m', strings.Join(args, " "), "submit text")
			if err != nil {
				return err
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the coach is doing",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request('s', "", "get status")
			if err != nil {
				return err
			}
			if raw {
				fmt.Print(resp)
				return nil
			}
			fields, err := bus.ParseStatus(resp)
			if err != nil {
				return err
			}
			fmt.Print(tui.RenderStatus(fields))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the daemon reply unformatted")
	return cmd
}

func historyCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request('l', "", "get history")
			if err != nil {
				return err
			}
			var turns []conversation.Turn
			if err := decodePayload(resp, "HISTORY", &turns); err != nil {
				return err
			}
			fmt.Print(tui.RenderHistory(turns, width))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 80, "wrap width")
	return cmd
}

func copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy",
		Short: "Copy the coach's last reply to the clipboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request('l', "", "get history")
			if err != nil {
				return err
			}
			var turns []conversation.Turn
			if err := decodePayload(resp, "HISTORY", &turns); err != nil {
				return err
			}
			text, ok := lastReply(turns)
			if !ok {
				return fmt.Errorf("no reply to copy yet")
			}
			if err := clipboard.Copy(cmd.Context(), text, clipboard.DefaultTimeout); err != nil {
				return err
			}
			fmt.Println("Copied the last reply.")
			return nil
		},
	}
}

// lastReply finds the newest assistant turn that is not an error message.
func lastReply(turns []conversation.Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if t := turns[i]; t.Role == conversation.Assistant && !t.Error {
			return t.Text, true
		}
	}
	return "", false
}

func voicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices the synthesizer offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := request('o', "", "list voices")
			if err != nil {
				return err
			}
			var voices []playback.Voice
			if err := decodePayload(resp, "VOICES", &voices); err != nil {
				return err
			}
			locale := ""
			if cfg, err := config.Load(); err == nil {
				locale = cfg.Locale()
			}
			fmt.Print(tui.RenderVoices(voices, locale))
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for hyprcoach.
This will guide you through setting up:
- The coaching language
- The AI models and API key
- Speech recognition and playback
- History storage and notifications`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved successfully!"))
	fmt.Println()
	showNextSteps()
	return nil
}

func showNextSteps() {
	serviceRunning := exec.Command("systemctl", "--user", "is-active", "--quiet", "hyprcoach.service").Run() == nil

	fmt.Println("Next Steps:")
	if serviceRunning {
		fmt.Println("1. Running daemons pick up most changes; restart to switch backends: systemctl --user restart hyprcoach.service")
	} else {
		fmt.Println("1. Start the daemon: hyprcoach serve (or systemctl --user start hyprcoach.service)")
	}
	fmt.Println("2. Start a conversation: hyprcoach toggle")
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the external programs hyprcoach uses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			needed := map[string]bool{}
			for _, r := range deps.Needed(cfg.Capture.Backend, cfg.Playback.Backend, cfg.Notifications.Type, cfg.Notifications.Enabled) {
				needed[r.Name] = true
			}

			checks := []struct {
				req    deps.Requirement
				status deps.Status
			}{
				{deps.PipeWire, deps.CheckPipeWire()},
				{deps.Espeak, deps.CheckEspeak()},
				{deps.NotifySend, deps.CheckNotifySend()},
				{deps.Clipboard, deps.CheckClipboard()},
			}
			var missing int
			for _, c := range checks {
				fmt.Println(formatCheck(c.req, c.status, needed[c.req.Name]))
				if needed[c.req.Name] && !c.status.Installed {
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d required program(s) missing", missing)
			}
			return nil
		},
	}
}

func formatCheck(r deps.Requirement, s deps.Status, needed bool) string {
	note := "optional"
	if needed {
		note = "required"
	}
	switch {
	case s.Installed && s.Version != "":
		return tui.StyleSuccess.Render("✓") + fmt.Sprintf(" %s (%s) %s", s.Name, s.Version, tui.StyleMuted.Render(r.Purpose))
	case s.Installed:
		return tui.StyleSuccess.Render("✓") + fmt.Sprintf(" %s %s", s.Name, tui.StyleMuted.Render(r.Purpose))
	case needed:
		return tui.StyleError.Render("✗") + fmt.Sprintf(" %s not found, %s for %s", r.Name, note, r.Purpose)
	default:
		return tui.StyleMuted.Render(fmt.Sprintf("- %s not found, %s for %s", r.Name, note, r.Purpose))
	}
}

func request(letter byte, arg, action string) (string, error) {
	resp, err := bus.SendCommandArg(letter, arg)
	if err != nil {
		return "", fmt.Errorf("failed to %s: %w", action, err)
	}
	if msg, ok := strings.CutPrefix(resp, "ERR "); ok {
		return "", fmt.Errorf("%s", strings.TrimSpace(msg))
	}
	return resp, nil
}

// decodePayload parses a "<PREFIX> <json>" reply line.
func decodePayload(resp, prefix string, v any) error {
	body, ok := strings.CutPrefix(strings.TrimSpace(resp), prefix+" ")
	if !ok {
		return fmt.Errorf("unexpected reply: %s", strings.TrimSpace(resp))
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode %s: %w", strings.ToLower(prefix), err)
	}
	return nil
}
