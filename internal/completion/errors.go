package completion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredential means no API key was configured. It is a configuration
	// problem and is never retried.
	ErrMissingCredential = errors.New("completion API key missing")

	// ErrCanceled is returned when the caller cancels an in-flight request.
	// It is a no-op outcome, not a failure.
	ErrCanceled = errors.New("completion canceled")

	// ErrNoCandidates means the candidate model list is empty.
	ErrNoCandidates = errors.New("no candidate models configured")
)

// CandidateFailure records why one candidate model did not produce an answer.
type CandidateFailure struct {
	Model      string
	StatusCode int    // 0 when the failure happened below HTTP or mid-stream
	Reason     string // human readable
	Auth       bool   // 401/403: systemic, not per-model
}

func (f CandidateFailure) String() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", f.Model, f.StatusCode, f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Model, f.Reason)
}

// ExhaustedError is returned when every candidate failed or answered with nothing.
type ExhaustedError struct {
	Failures   []CandidateFailure
	AuthFailed bool
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	if e.AuthFailed {
		return fmt.Sprintf("completion authentication failed (%s)", strings.Join(parts, "; "))
	}
	return fmt.Sprintf("all %d candidate models failed (%s)", len(e.Failures), strings.Join(parts, "; "))
}

// UserMessage is the wording shown in the conversation when a turn fails.
func (e *ExhaustedError) UserMessage() string {
	if e.AuthFailed {
		return "I couldn't reach the AI service: the API key was rejected. Check completion.api_key in your config."
	}
	return "Sorry, none of the AI models answered right now. Please try again in a moment."
}

func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
