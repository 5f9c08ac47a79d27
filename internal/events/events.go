package events

import "sync"

// Kind identifies what changed
type Kind string

const (
	ConversationsChanged Kind = "conversations.changed"
	ConversationLoaded   Kind = "conversation.loaded"
	Welcome              Kind = "welcome"
	MessageAppended      Kind = "message.appended"
	MessageDisplayed     Kind = "message.displayed" // shown but not persisted
	RevealProgress       Kind = "reveal.progress"
	RevealDone           Kind = "reveal.done"
	TitleChanged         Kind = "title.changed"
	CallState            Kind = "call.state"
	CallTick             Kind = "call.tick"
	CallEnded            Kind = "call.ended"
	TranscriptToggled    Kind = "transcript.toggled"
	CaptureError         Kind = "capture.error"
)

// Event is a state change notification for renderers. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind           Kind   `json:"kind"`
	ConversationID string `json:"conversation_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Text           string `json:"text,omitempty"`
	Title          string `json:"title,omitempty"`
	State          string `json:"state,omitempty"`
	Index          int    `json:"index"`
	Visible        bool   `json:"visible,omitempty"`
}

// Publisher is implemented by anything that accepts events
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers synchronously, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every subscriber
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder collects published events; handy for headless harnesses.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds recorded so far, in order
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many events of kind k were recorded
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
