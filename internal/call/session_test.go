package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PickleChat/internal/backend"
	"PickleChat/internal/conversation"
	"PickleChat/internal/events"
	"PickleChat/internal/speech"
	"PickleChat/internal/speech/speechtest"
	"PickleChat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]backend.Message
	reply   string
	err     error
	release chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []backend.Message, opts backend.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	session    *Session
	completer  *fakeCompleter
	recognizer *speechtest.Recognizer
	synth      *speechtest.Synthesizer
	events     *events.Recorder
}

func newHarness(t *testing.T, completer *fakeCompleter, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		completer:  completer,
		recognizer: &speechtest.Recognizer{},
		synth:      &speechtest.Synthesizer{Spoken: make(chan string, 16)},
		events:     &events.Recorder{},
	}
	speaker := speech.NewSpeaker(h.synth, nil)
	h.session = NewSession(completer, h.recognizer, speaker, h.events, nil, opts...)
	t.Cleanup(func() {
		if h.session.Active() {
			h.session.End()
		}
	})
	return h
}

func (h *harness) nextSpoken(t *testing.T) string {
	t.Helper()
	select {
	case text := <-h.synth.Spoken:
		return text
	case <-time.After(waitFor):
		t.Fatal("nothing was spoken")
		return ""
	}
}

func TestStartEntersListening(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "hi"})

	assert.Equal(t, Idle, h.session.State())
	assert.False(t, h.session.Active())

	require.NoError(t, h.session.Start(context.Background()))
	assert.Equal(t, Listening, h.session.State())
	assert.True(t, h.session.Active())
	assert.True(t, h.recognizer.Listening())

	assert.ErrorIs(t, h.session.Start(context.Background()), ErrAlreadyActive)
}

func TestStartFailsWhenCaptureUnavailable(t *testing.T) {
	h := newHarness(t, &fakeCompleter{})
	h.recognizer.StartErr = errors.New("not-allowed")

	err := h.session.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, h.session.State())
}

func TestUtteranceLoop(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "**Hello** there 😀"})
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Say("good morning"))
	assert.Equal(t, "Hello there", h.nextSpoken(t))
	assert.Equal(t, Speaking, h.session.State())
	assert.False(t, h.recognizer.Listening(), "capture is paused while speaking")

	h.completer.mu.Lock()
	require.Len(t, h.completer.calls, 1)
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleSystem, Content: PhonePrompt},
		{Role: backend.RoleUser, Content: "good morning"},
	}, h.completer.calls[0])
	h.completer.mu.Unlock()

	h.synth.Finish(nil)
	assert.Equal(t, Listening, h.session.State())
	assert.True(t, h.recognizer.Listening(), "capture restarts after speaking")

	require.True(t, h.recognizer.Say("bye"))
	h.nextSpoken(t)
	h.synth.Finish(nil)

	transcript, err := h.session.End()
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{User: "good morning", Bot: "**Hello** there 😀"},
		{User: "bye", Bot: "**Hello** there 😀"},
	}, transcript.Turns)
}

func TestResultsIgnoredUnlessListening(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "r"})

	h.session.OnResult("too early")
	assert.Zero(t, h.completer.callCount())

	require.NoError(t, h.session.Start(context.Background()))
	h.session.OnResult("   ")
	assert.Equal(t, Listening, h.session.State())
	assert.Zero(t, h.completer.callCount())
}

func TestCaptureEndWithoutResultRestarts(t *testing.T) {
	h := newHarness(t, &fakeCompleter{})
	require.NoError(t, h.session.Start(context.Background()))
	assert.Equal(t, 1, h.recognizer.Starts())

	h.session.OnCaptureEnd()
	assert.Equal(t, 2, h.recognizer.Starts())
	assert.Equal(t, Listening, h.session.State())
}

func TestCaptureErrorIsReportedAndCaptureRestarts(t *testing.T) {
	h := newHarness(t, &fakeCompleter{})
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Fail("no-speech"))
	assert.Equal(t, 1, h.events.Count(events.CaptureError))
	assert.True(t, h.recognizer.Listening())
	assert.Equal(t, Listening, h.session.State())
}

func TestServiceErrorIsSpoken(t *testing.T) {
	h := newHarness(t, &fakeCompleter{err: errors.New("503")})
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Say("hello?"))
	assert.Equal(t, ErrorSpeech, h.nextSpoken(t))
	h.synth.Finish(nil)

	transcript, err := h.session.End()
	require.NoError(t, err)
	assert.Empty(t, transcript.Turns)
}

func TestSynthesisErrorResumesCapture(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "r"})
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Say("x"))
	h.nextSpoken(t)
	h.synth.Finish(errors.New("audio-busy"))

	assert.Equal(t, Listening, h.session.State())
	assert.True(t, h.recognizer.Listening())
}

func TestEndWhileSpeakingCancelsSynthesis(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "long answer"})
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Say("talk to me"))
	h.nextSpoken(t)

	_, err := h.session.End()
	require.NoError(t, err)
	assert.Equal(t, 1, h.synth.Cancels())
	assert.False(t, h.recognizer.Listening())
	assert.Equal(t, Ended, h.session.State())

	h.synth.Finish(nil)
	assert.False(t, h.recognizer.Listening(), "a cancelled utterance does not restart capture")
}

func TestReplyAfterEndIsDropped(t *testing.T) {
	completer := &fakeCompleter{reply: "late", release: make(chan struct{})}
	h := newHarness(t, completer)
	require.NoError(t, h.session.Start(context.Background()))

	require.True(t, h.recognizer.Say("question"))
	require.Eventually(t, func() bool { return completer.callCount() == 1 }, waitFor, time.Millisecond)

	transcript, err := h.session.End()
	require.NoError(t, err)
	close(completer.release)

	select {
	case text := <-h.synth.Spoken:
		t.Fatalf("spoke %q after the call ended", text)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, transcript.Turns)
	assert.Empty(t, h.session.Transcripts()[0].Turns)
}

func TestReplyFromPreviousCallIsDropped(t *testing.T) {
	completer := &fakeCompleter{reply: "old answer", release: make(chan struct{})}
	h := newHarness(t, completer)
	ctx := context.Background()

	require.NoError(t, h.session.Start(ctx))
	require.True(t, h.recognizer.Say("first call question"))
	require.Eventually(t, func() bool { return completer.callCount() == 1 }, waitFor, time.Millisecond)
	_, err := h.session.End()
	require.NoError(t, err)

	require.NoError(t, h.session.Start(ctx))
	close(completer.release)

	select {
	case text := <-h.synth.Spoken:
		t.Fatalf("second call spoke %q from the first call", text)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, Listening, h.session.State())
	assert.True(t, h.recognizer.Listening())

	second, err := h.session.End()
	require.NoError(t, err)
	assert.Empty(t, second.Turns)
}

func TestEndArchivesAndPublishesMarker(t *testing.T) {
	h := newHarness(t, &fakeCompleter{reply: "pong"}, WithConversation(func() string { return "42" }))

	_, err := h.session.End()
	assert.ErrorIs(t, err, ErrNotActive)

	require.NoError(t, h.session.Start(context.Background()))
	require.True(t, h.recognizer.Say("ping"))
	h.nextSpoken(t)
	h.synth.Finish(nil)
	_, err = h.session.End()
	require.NoError(t, err)

	var marker, ended events.Event
	for _, e := range h.events.Events() {
		switch e.Kind {
		case events.MessageDisplayed:
			marker = e
		case events.CallEnded:
			ended = e
		}
	}
	assert.Equal(t, EndedMarker, marker.Text)
	assert.Equal(t, "System", marker.Role)
	assert.Equal(t, "42", marker.ConversationID)
	assert.Equal(t, "You: ping\nPickle: pong", ended.Text)

	transcripts := h.session.Transcripts()
	require.Len(t, transcripts, 1)
	assert.False(t, transcripts[0].Visible)

	// a second call starts with an empty transcript
	require.NoError(t, h.session.Start(context.Background()))
	_, err = h.session.End()
	require.NoError(t, err)
	transcripts = h.session.Transcripts()
	require.Len(t, transcripts, 2)
	assert.Len(t, transcripts[0].Turns, 1)
	assert.Empty(t, transcripts[1].Turns)
}

func TestCallTurnsNeverReachConversation(t *testing.T) {
	store, err := conversation.NewStore(storage.NewMemory(), "conversations", nil)
	require.NoError(t, err)
	conv, err := store.Create()
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, conversation.Message{Role: conversation.RoleUser, Content: "typed"}))

	h := newHarness(t, &fakeCompleter{reply: "spoken"}, WithConversation(store.CurrentID))
	require.NoError(t, h.session.Start(context.Background()))
	require.True(t, h.recognizer.Say("said aloud"))
	h.nextSpoken(t)
	h.synth.Finish(nil)
	_, err = h.session.End()
	require.NoError(t, err)

	got, err := store.Get(conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "typed", got.Messages[0].Content)
}

func TestToggleTranscript(t *testing.T) {
	h := newHarness(t, &fakeCompleter{})
	require.NoError(t, h.session.Start(context.Background()))
	_, err := h.session.End()
	require.NoError(t, err)

	visible, err := h.session.ToggleTranscript(0)
	require.NoError(t, err)
	assert.True(t, visible)
	visible, err = h.session.ToggleTranscript(0)
	require.NoError(t, err)
	assert.False(t, visible)
	assert.Equal(t, 2, h.events.Count(events.TranscriptToggled))

	_, err = h.session.ToggleTranscript(1)
	assert.Error(t, err)
}

func TestTimerTicksUntilEnd(t *testing.T) {
	h := newHarness(t, &fakeCompleter{}, WithTickInterval(5*time.Millisecond))
	require.NoError(t, h.session.Start(context.Background()))

	require.Eventually(t, func() bool { return h.session.Elapsed() >= 2 }, waitFor, time.Millisecond)
	_, err := h.session.End()
	require.NoError(t, err)

	stopped := h.session.Elapsed()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, h.session.Elapsed())

	var ticks []string
	for _, e := range h.events.Events() {
		if e.Kind == events.CallTick {
			ticks = append(ticks, e.Text)
		}
	}
	require.GreaterOrEqual(t, len(ticks), 2)
	assert.Equal(t, "00:01", ticks[0])
	assert.Equal(t, "00:02", ticks[1])
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{9, "00:09"},
		{61, "01:01"},
		{600, "10:00"},
		{6000, "100:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatClock(tt.seconds))
	}
}

func TestTranscriptText(t *testing.T) {
	tr := &Transcript{Turns: []Turn{{User: "a", Bot: "b"}, {User: "c", Bot: "d"}}}
	assert.Equal(t, "You: a\nPickle: b\n\nYou: c\nPickle: d", tr.Text())
	assert.Equal(t, "", (&Transcript{}).Text())
}
