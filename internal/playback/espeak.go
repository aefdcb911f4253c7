package playback

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// espeak-ng is preferred; plain espeak shares its command line.
var espeakCommands = []string{"espeak-ng", "espeak"}

const voicesTimeout = 5 * time.Second

type EspeakConfig struct {
	Command string // empty = first of espeak-ng, espeak on $PATH
}

// Espeak speaks through a local espeak-ng process.
type Espeak struct {
	config EspeakConfig
}

func NewEspeak(cfg EspeakConfig) *Espeak {
	return &Espeak{config: cfg}
}

func (e *Espeak) command() (string, error) {
	if e.config.Command != "" {
		path, err := exec.LookPath(e.config.Command)
		if err != nil {
			return "", fmt.Errorf("%s not found: %w", e.config.Command, ErrUnsupported)
		}
		return path, nil
	}
	for _, name := range espeakCommands {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("espeak-ng not found (install espeak-ng package): %w", ErrUnsupported)
}

func (e *Espeak) Voices(ctx context.Context) ([]Voice, error) {
	path, err := e.command()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, voicesTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("list espeak voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

func (e *Espeak) Speak(ctx context.Context, u Utterance, onStart func()) error {
	path, err := e.command()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, buildEspeakArgs(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start espeak: %w", err)
	}
	if onStart != nil {
		onStart()
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("espeak failed: %w: %s", err, msg)
		}
		return fmt.Errorf("espeak failed: %w", err)
	}
	return nil
}

func (e *Espeak) Close() error { return nil }

func buildEspeakArgs(u Utterance) []string {
	var args []string
	switch {
	case u.Voice.Lang != "":
		args = append(args, "-v", strings.ToLower(u.Voice.Lang))
	case u.Voice.Name != "":
		args = append(args, "-v", u.Voice.Name)
	}
	if u.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(u.Rate))
	}
	return append(args, "--stdin")
}

// parseEspeakVoices reads the table printed by `espeak-ng --voices`:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, Voice{
			Name: strings.ReplaceAll(fields[3], "_", " "),
			Lang: fields[1],
		})
	}
	return voices
}
