package console

import (
	"strings"
	"sync"

	"PickleChat/internal/speech"
)

// Recognizer treats typed lines as captured speech. Like a single-result
// browser recogniser it delivers one line per Start.
type Recognizer struct {
	mu       sync.Mutex
	listener speech.Listener
}

// NewRecognizer creates an idle recognizer
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Start(l speech.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
	return nil
}

func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = nil
}

// Listening reports whether a line would be captured now
func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener != nil
}

// Feed delivers line as the result of the running capture and ends it.
// It reports false when nothing is listening.
func (r *Recognizer) Feed(line string) bool {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()

	if l == nil {
		return false
	}
	line = strings.TrimSpace(line)
	if line == "" {
		l.OnCaptureError("no-speech")
	} else {
		l.OnResult(line)
	}
	l.OnCaptureEnd()
	return true
}
