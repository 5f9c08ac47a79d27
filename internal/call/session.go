// Package call implements the voice call mode: a capture/reply/speak loop
// whose transcript is kept apart from persisted conversations.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"PickleChat/internal/backend"
	"PickleChat/internal/chat"
	"PickleChat/internal/conversation"
	"PickleChat/internal/events"
	"PickleChat/internal/speech"
)

const (
	PhonePrompt  = "You are Pickle, a phone assistant. Keep replies short and do not display them in the main chat."
	ErrorSpeech  = "Error happened. Try again."
	EndedMarker  = "*Voice chat ended*"
	tickInterval = time.Second
)

var (
	ErrAlreadyActive = errors.New("call already in progress")
	ErrNotActive     = errors.New("no call in progress")
)

// State is a call session state
type State string

const (
	Idle       State = "idle"
	Listening  State = "listening"
	Processing State = "processing"
	Speaking   State = "speaking"
	Ended      State = "ended"
)

// Turn is one exchange of a call
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Transcript is an archived call
type Transcript struct {
	Turns   []Turn
	Visible bool
}

// Text renders the transcript as alternating speaker lines
func (t *Transcript) Text() string {
	var b strings.Builder
	for _, turn := range t.Turns {
		fmt.Fprintf(&b, "You: %s\nPickle: %s\n\n", turn.User, turn.Bot)
	}
	return strings.TrimSpace(b.String())
}

// Session is the call state machine. Capture and synthesis callbacks drive
// transitions:
//
//	Idle/Ended --Start--> Listening --result--> Processing --reply--> Speaking
//	Speaking --synthesis done--> Listening
//	any active state --End--> Ended
type Session struct {
	completer  chat.Completer
	recognizer speech.Recognizer
	speaker    *speech.Speaker
	publisher  events.Publisher
	logger     *slog.Logger
	interval   time.Duration

	currentConversation func() string

	mu        sync.Mutex
	state     State
	call      uint64 // incremented by Start; async work for older calls is dropped
	current   []Turn
	archive   []*Transcript
	elapsed   int
	ctx       context.Context
	stopTimer context.CancelFunc
}

// Option customises a Session
type Option func(*Session)

// WithTickInterval changes the timer period; tests use short intervals
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithConversation supplies the id of the conversation the end-of-call
// marker is displayed in
func WithConversation(currentID func() string) Option {
	return func(s *Session) { s.currentConversation = currentID }
}

// NewSession creates an idle call session
func NewSession(completer chat.Completer, recognizer speech.Recognizer, speaker *speech.Speaker, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Session {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		completer:           completer,
		recognizer:          recognizer,
		speaker:             speaker,
		publisher:           publisher,
		logger:              logger,
		interval:            tickInterval,
		state:               Idle,
		ctx:                 context.Background(),
		currentConversation: func() string { return "" },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether a call is in progress
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Session) activeLocked() bool {
	return s.state != Idle && s.state != Ended
}

// Start enters call mode: capture begins and the call timer starts.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.activeLocked() {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.call++
	s.current = nil
	s.elapsed = 0
	s.state = Listening
	timerCtx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.stopTimer = cancel
	s.mu.Unlock()

	if err := s.recognizer.Start(s); err != nil {
		cancel()
		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	s.logger.Info("call started")
	s.publishState(Listening)
	go s.runTimer(timerCtx)
	return nil
}

func (s *Session) runTimer(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	elapsed := s.elapsed
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.CallTick, Text: FormatClock(elapsed)})
}

// Elapsed returns the call duration in whole seconds
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// OnResult handles a final capture result. Only a listening session
// accepts results; the utterance is processed asynchronously.
func (s *Session) OnResult(transcript string) {
	transcript = strings.TrimSpace(transcript)

	s.mu.Lock()
	if s.state != Listening || transcript == "" {
		s.mu.Unlock()
		return
	}
	s.state = Processing
	ctx := s.ctx
	call := s.call
	s.mu.Unlock()

	s.recognizer.Stop()
	s.publishState(Processing)
	go s.handleUtterance(ctx, call, transcript)
}

// OnCaptureEnd restarts capture when the session is still waiting for speech
func (s *Session) OnCaptureEnd() {
	s.mu.Lock()
	listening := s.state == Listening
	s.mu.Unlock()
	if listening {
		s.restartCapture()
	}
}

// OnCaptureError logs the error and resets the recording indicator
func (s *Session) OnCaptureError(code string) {
	s.logger.Error("SpeechRec error", "error", code)
	s.publisher.Publish(events.Event{Kind: events.CaptureError, Text: code})
}

// HandleUtterance asks the completion service for a short spoken reply,
// records the exchange and speaks the reply if the call that was active
// when it was invoked is still in progress.
func (s *Session) HandleUtterance(ctx context.Context, text string) {
	s.mu.Lock()
	call := s.call
	s.mu.Unlock()
	s.handleUtterance(ctx, call, text)
}

func (s *Session) handleUtterance(ctx context.Context, call uint64, text string) {
	messages := []backend.Message{
		{Role: backend.RoleSystem, Content: PhonePrompt},
		{Role: backend.RoleUser, Content: text},
	}
	reply, err := s.completer.Complete(ctx, messages, backend.Options{})
	if err != nil {
		s.logger.Error("Voice call error", "error", err)
		s.speak(call, ErrorSpeech)
		return
	}

	s.mu.Lock()
	if s.currentLocked(call) {
		s.current = append(s.current, Turn{User: text, Bot: reply})
	}
	s.mu.Unlock()

	s.speak(call, reply)
}

// currentLocked reports whether call is the one in progress
func (s *Session) currentLocked(call uint64) bool {
	return s.call == call && s.activeLocked()
}

func (s *Session) speak(call uint64, text string) {
	s.mu.Lock()
	if !s.currentLocked(call) {
		s.mu.Unlock()
		return
	}
	s.state = Speaking
	s.mu.Unlock()

	s.recognizer.Stop()
	s.publishState(Speaking)
	s.speaker.Speak(text, s.onSpeechDone)
}

func (s *Session) onSpeechDone(err error) {
	s.mu.Lock()
	if s.state != Speaking {
		s.mu.Unlock()
		return
	}
	s.state = Listening
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("speech synthesis failed, resuming capture", "error", err)
	}
	s.publishState(Listening)
	s.restartCapture()
}

func (s *Session) restartCapture() {
	if err := s.recognizer.Start(s); err != nil {
		s.logger.Error("failed to restart capture", "error", err)
	}
}

// End leaves call mode and archives the transcript
func (s *Session) End() (*Transcript, error) {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	s.state = Ended
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
	t := &Transcript{Turns: s.current}
	s.current = nil
	s.archive = append(s.archive, t)
	index := len(s.archive) - 1
	elapsed := s.elapsed
	s.mu.Unlock()

	s.recognizer.Stop()
	s.speaker.Cancel()

	s.logger.Info("call ended", "turns", len(t.Turns), "duration", FormatClock(elapsed))
	s.publishState(Ended)
	convID := s.currentConversation()
	s.publisher.Publish(events.Event{
		Kind:           events.MessageDisplayed,
		ConversationID: convID,
		Role:           string(conversation.RoleSystem),
		Text:           EndedMarker,
	})
	s.publisher.Publish(events.Event{Kind: events.CallEnded, ConversationID: convID, Index: index, Text: t.Text()})
	return t, nil
}

// Transcripts returns the archived calls, oldest first
func (s *Session) Transcripts() []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transcript, len(s.archive))
	for i, t := range s.archive {
		out[i] = Transcript{Turns: append([]Turn(nil), t.Turns...), Visible: t.Visible}
	}
	return out
}

// ToggleTranscript shows or hides archived transcript i and returns the new visibility
func (s *Session) ToggleTranscript(i int) (bool, error) {
	s.mu.Lock()
	if i < 0 || i >= len(s.archive) {
		s.mu.Unlock()
		return false, fmt.Errorf("transcript %d not found", i)
	}
	t := s.archive[i]
	t.Visible = !t.Visible
	visible := t.Visible
	text := t.Text()
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.TranscriptToggled, Index: i, Visible: visible, Text: text})
	return visible, nil
}

func (s *Session) publishState(state State) {
	s.publisher.Publish(events.Event{Kind: events.CallState, State: string(state)})
}

// FormatClock renders seconds as MM:SS
func FormatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
