package transcript

import "strings"

// Fragment is a single recognition result for part of an utterance.
type Fragment struct {
	Text  string
	Final bool
}

// Reconciler merges interim and final fragments into one utterance buffer.
// Final fragments are committed; the latest interim fragment is held aside
// and fully replaced by the next one, since recognisers resend the whole
// unfinished phrase on every interim result.
type Reconciler struct {
	committed strings.Builder
	pending   string

	// ReplaceLastWord makes Display drop the last committed word before the
	// pending fragment. Some recognisers re-guess the tail of the previous
	// final result in their next interim; Text is never affected.
	ReplaceLastWord bool
}

func NewReconciler(replaceLastWord bool) *Reconciler {
	return &Reconciler{ReplaceLastWord: replaceLastWord}
}

// Apply reduces one fragment into the buffer.
func (r *Reconciler) Apply(f Fragment) {
	if !f.Final {
		r.pending = strings.TrimSpace(f.Text)
		return
	}

	r.pending = ""
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return
	}
	if r.committed.Len() > 0 {
		r.committed.WriteByte(' ')
	}
	r.committed.WriteString(text)
}

// Text returns the committed utterance used for submission.
func (r *Reconciler) Text() string {
	return strings.TrimSpace(r.committed.String())
}

// Pending returns the latest interim fragment.
func (r *Reconciler) Pending() string {
	return r.pending
}

// Display returns committed text plus the pending guess, for live feedback only.
func (r *Reconciler) Display() string {
	committed := r.Text()
	if r.pending == "" {
		return committed
	}
	if r.ReplaceLastWord && committed != "" {
		if i := strings.LastIndexByte(committed, ' '); i >= 0 {
			committed = committed[:i]
		} else {
			committed = ""
		}
	}
	return strings.TrimSpace(committed + " " + r.pending)
}

// Take returns the committed text and clears the buffer.
func (r *Reconciler) Take() string {
	text := r.Text()
	r.Reset()
	return text
}

func (r *Reconciler) Reset() {
	r.committed.Reset()
	r.pending = ""
}
