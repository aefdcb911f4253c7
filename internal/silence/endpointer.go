package silence

import (
	"sync"
	"time"
)

// DefaultTimeout is how long the user must stay quiet before an utterance is complete.
const DefaultTimeout = 1500 * time.Millisecond

// Endpointer is a restartable one-shot timer. Every Reset disarms the
// previous timer; a timer that was superseded never calls onTimeout, even if
// it had already expired and was waiting for the lock.
type Endpointer struct {
	mu        sync.Mutex
	duration  time.Duration
	timer     *time.Timer
	gen       uint64
	armed     bool
	onTimeout func()
}

func New(d time.Duration, onTimeout func()) *Endpointer {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &Endpointer{duration: d, onTimeout: onTimeout}
}

// Reset cancels any pending timer and arms a new one.
func (e *Endpointer) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.armed = true
	e.timer = time.AfterFunc(e.duration, func() { e.fire(gen) })
}

// Stop disarms the timer without firing.
func (e *Endpointer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gen++
	e.armed = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Pending reports whether a timer is armed and has not fired yet.
func (e *Endpointer) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.armed
}

// SetDuration changes the quiet interval used by the next Reset.
func (e *Endpointer) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.duration = d
	e.mu.Unlock()
}

func (e *Endpointer) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Endpointer) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || !e.armed {
		e.mu.Unlock()
		return
	}
	e.armed = false
	e.timer = nil
	cb := e.onTimeout
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
}
