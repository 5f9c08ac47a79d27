// Package speechtest provides scripted speech collaborators for tests.
package speechtest

import (
	"sync"

	"PickleChat/internal/speech"
)

// Synthesizer records utterances and lets the test decide when they finish.
type Synthesizer struct {
	mu      sync.Mutex
	spoken  []speech.Utterance
	dones   []func(error)
	cancels int

	// Spoken receives the text of every utterance, if non-nil.
	Spoken chan string
	// AutoFinish completes each utterance right after it starts.
	AutoFinish bool
}

func (s *Synthesizer) Speak(u speech.Utterance, done func(err error)) {
	s.mu.Lock()
	s.spoken = append(s.spoken, u)
	s.dones = append(s.dones, done)
	auto := s.AutoFinish
	ch := s.Spoken
	s.mu.Unlock()

	if ch != nil {
		ch <- u.Text
	}
	if auto {
		s.Finish(nil)
	}
}

func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

// Finish completes the most recent utterance with err
func (s *Synthesizer) Finish(err error) {
	s.mu.Lock()
	i := len(s.dones) - 1
	s.mu.Unlock()
	s.FinishAt(i, err)
}

// FinishAt completes the i-th utterance with err. Each utterance completes
// at most once.
func (s *Synthesizer) FinishAt(i int, err error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.dones) {
		s.mu.Unlock()
		return
	}
	done := s.dones[i]
	s.dones[i] = nil
	s.mu.Unlock()
	if done != nil {
		done(err)
	}
}

// Utterances returns everything spoken so far
func (s *Synthesizer) Utterances() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Utterance, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Cancels reports how many times Cancel was called
func (s *Synthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Recognizer hands scripted transcripts to the listener while started.
type Recognizer struct {
	mu       sync.Mutex
	listener speech.Listener
	starts   int
	stops    int
	StartErr error
}

func (r *Recognizer) Start(l speech.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.listener = l
	r.starts++
	return nil
}

func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = nil
	r.stops++
}

// Say delivers transcript as a final result, followed by the end of
// capture. It reports false when the recogniser is not listening.
func (r *Recognizer) Say(transcript string) bool {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()
	if l == nil {
		return false
	}
	l.OnResult(transcript)
	l.OnCaptureEnd()
	return true
}

// Fail reports a capture error followed by the end of capture
func (r *Recognizer) Fail(code string) bool {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()
	if l == nil {
		return false
	}
	l.OnCaptureError(code)
	l.OnCaptureEnd()
	return true
}

// Listening reports whether capture is running
func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener != nil
}

// Starts reports how many captures were started
func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Stops reports how many times capture was stopped
func (r *Recognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}
