package speech

import (
	"log/slog"
	"sync"
)

// Speaker keeps at most one utterance active on a Synthesizer.
type Speaker struct {
	synth  Synthesizer
	logger *slog.Logger

	mu       sync.Mutex
	speaking bool
	gen      uint64
}

// NewSpeaker wraps synth
func NewSpeaker(synth Synthesizer, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{synth: synth, logger: logger}
}

// Speak cleans text, cancels whatever is being spoken and starts the new
// utterance. done is called once when it finishes; it is never called for
// an utterance that was cancelled or replaced.
func (s *Speaker) Speak(text string, done func(err error)) {
	cleaned := Clean(text)

	s.mu.Lock()
	interrupt := s.speaking
	s.gen++
	gen := s.gen
	s.speaking = true
	s.mu.Unlock()

	if interrupt {
		s.synth.Cancel()
	}

	s.synth.Speak(Utterance{Text: cleaned, Rate: 1.0, Pitch: 1.0, Volume: 1.0}, func(err error) {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.speaking = false
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("TTS error", "error", err)
		}
		if done != nil {
			done(err)
		}
	})
}

// Cancel stops the active utterance, if any
func (s *Speaker) Cancel() {
	s.mu.Lock()
	if !s.speaking {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.speaking = false
	s.mu.Unlock()

	s.synth.Cancel()
}

// Speaking reports whether an utterance is active
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
