package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"PickleChat/internal/speech"
)

// Synthesizer prints utterances and, when Command is set, pipes them to an
// external text-to-speech program such as espeak.
type Synthesizer struct {
	out     io.Writer
	command string
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSynthesizer creates a synthesizer writing to out
func NewSynthesizer(out io.Writer, command string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{out: out, command: command, logger: logger}
}

// Speak completes asynchronously so callers never re-enter their own callback.
func (s *Synthesizer) Speak(u speech.Utterance, done func(err error)) {
	fmt.Fprintf(s.out, "Pickle (speaking): %s\n", u.Text)

	if s.command == "" {
		go done(nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.command, u.Text)
	go func() {
		err := cmd.Run()
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("speech interrupted: %w", err)
		}
		cancel()
		done(err)
	}()
}

// Cancel kills the running TTS process, if any
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
