package transcriber

import "context"

// Result is one recognition hypothesis from a streaming session.
type Result struct {
	Text    string // partial or final transcript
	IsFinal bool   // false for interim hypotheses that may still change
	Error   error  // non-nil ends the session
}

// StreamingAdapter sends live audio to a recogniser and yields results.
// One adapter serves one session; Results is closed when the session ends.
type StreamingAdapter interface {
	// Start opens the connection for the given BCP 47 locale.
	Start(ctx context.Context, locale string) error

	// SendChunk forwards raw 16-bit PCM audio.
	SendChunk(audio []byte) error

	Results() <-chan Result

	// Finalize flushes pending audio and waits for the last final result.
	Finalize(ctx context.Context) error

	Close() error
}
