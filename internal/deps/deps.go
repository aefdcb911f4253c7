// Package deps reports which external programs the configured backends need.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
}

// Requirement is an external program a backend shells out to.
type Requirement struct {
	Name        string
	Purpose     string
	Candidates  []string // first one found wins
	VersionFlag string
}

var (
	PipeWire   = Requirement{Name: "pw-record", Purpose: "microphone recording", Candidates: []string{"pw-record"}, VersionFlag: "--version"}
	Espeak     = Requirement{Name: "espeak-ng", Purpose: "speech playback", Candidates: []string{"espeak-ng", "espeak"}, VersionFlag: "--version"}
	NotifySend = Requirement{Name: "notify-send", Purpose: "desktop notifications", Candidates: []string{"notify-send"}, VersionFlag: "--version"}
	Clipboard  = Requirement{Name: "wl-copy", Purpose: "copying replies", Candidates: []string{"wl-copy"}, VersionFlag: "--version"}
)

// Check looks the requirement up in PATH and reads its version.
func Check(r Requirement) Status {
	for _, name := range r.Candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		status := Status{Name: name, Installed: true, Path: path}
		if r.VersionFlag != "" {
			if output, err := exec.Command(path, r.VersionFlag).Output(); err == nil {
				status.Version = firstLine(string(output))
			}
		}
		return status
	}
	return Status{Name: r.Name}
}

// CheckPipeWire checks if pw-record is installed and returns its status
func CheckPipeWire() Status { return Check(PipeWire) }

// CheckEspeak checks for espeak-ng, falling back to espeak
func CheckEspeak() Status { return Check(Espeak) }

func CheckNotifySend() Status { return Check(NotifySend) }

func CheckClipboard() Status { return Check(Clipboard) }

// Needed lists the programs the given backends rely on.
func Needed(captureBackend, playbackBackend, notificationType string, notifications bool) []Requirement {
	var reqs []Requirement
	if captureBackend == "deepgram" {
		reqs = append(reqs, PipeWire)
	}
	if playbackBackend == "espeak" {
		reqs = append(reqs, Espeak)
	}
	if notifications && notificationType == "desktop" {
		reqs = append(reqs, NotifySend)
	}
	return reqs
}

// Missing returns the requirements that are not installed.
func Missing(reqs []Requirement) []Requirement {
	var missing []Requirement
	for _, r := range reqs {
		if !Check(r).Installed {
			missing = append(missing, r)
		}
	}
	return missing
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
