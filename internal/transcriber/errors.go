package transcriber

import (
	"errors"
	"fmt"
)

// DialError is a failed connection attempt. StatusCode is 0 when no HTTP
// response was received.
type DialError struct {
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket dial: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("websocket dial: %v", e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Unauthorized reports a rejected credential.
func (e *DialError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ServiceError is an error message reported by the recognition service itself.
type ServiceError struct {
	Type    string
	Message string
}

func (e *ServiceError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("deepgram %s: %s", e.Type, e.Message)
	}
	return "deepgram: " + e.Message
}

// ErrConnectionLost means the socket dropped mid-session.
var ErrConnectionLost = errors.New("recognition connection lost")

func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
