package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"PickleChat/internal/events"
	"PickleChat/internal/storage"
)

// ErrNotFound is returned when no conversation has the requested id
var ErrNotFound = errors.New("conversation not found")

// Store owns the ordered list of conversations and the current selection.
// Every mutation rewrites the whole collection under a single storage key.
type Store struct {
	mu            sync.Mutex
	kv            storage.KV
	key           string
	conversations []*Conversation
	currentID     string
	publisher     events.Publisher
	logger        *slog.Logger
	now           func() time.Time
}

// Option customises a Store
type Option func(*Store)

// WithClock overrides the clock used to derive conversation ids
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore reads the collection stored under key once and returns the store.
// The first stored conversation, if any, becomes current.
func NewStore(kv storage.KV, key string, publisher events.Publisher, opts ...Option) (*Store, error) {
	if publisher == nil {
		publisher = events.Discard{}
	}
	s := &Store{
		kv:        kv,
		key:       key,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := kv.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	default:
		if err := json.Unmarshal(data, &s.conversations); err != nil {
			return nil, fmt.Errorf("failed to decode conversations: %w", err)
		}
	}

	if len(s.conversations) > 0 {
		s.currentID = s.conversations[0].ID
	}
	s.logger.Info("conversation store loaded", "count", len(s.conversations), "current", s.currentID)
	return s, nil
}

// Announce publishes the initial view: the list and either the current
// conversation or the welcome screen.
func (s *Store) Announce() {
	s.mu.Lock()
	currentID := s.currentID
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	if currentID == "" {
		s.publisher.Publish(events.Event{Kind: events.Welcome})
		return
	}
	s.publisher.Publish(events.Event{Kind: events.ConversationLoaded, ConversationID: currentID})
}

// Create prepends an empty conversation and makes it current
func (s *Store) Create() (Conversation, error) {
	s.mu.Lock()
	c := &Conversation{
		ID:       s.nextID(),
		Title:    DefaultTitle,
		Messages: []Message{},
	}
	s.conversations = append([]*Conversation{c}, s.conversations...)
	s.currentID = c.ID
	out := c.clone()
	err := s.saveLocked()
	s.mu.Unlock()

	s.logger.Info("created new conversation", "conversation_id", out.ID)
	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	s.publisher.Publish(events.Event{Kind: events.ConversationLoaded, ConversationID: out.ID})
	return out, err
}

// Delete removes the conversation with id. Deleting the current
// conversation selects the new first conversation, or none.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.conversations = append(s.conversations[:idx:idx], s.conversations[idx+1:]...)

	wasCurrent := s.currentID == id
	if wasCurrent {
		s.currentID = ""
		if len(s.conversations) > 0 {
			s.currentID = s.conversations[0].ID
		}
	}
	currentID := s.currentID
	err := s.saveLocked()
	s.mu.Unlock()

	s.logger.Info("deleted conversation", "conversation_id", id, "current", currentID)
	if wasCurrent {
		if currentID == "" {
			s.publisher.Publish(events.Event{Kind: events.Welcome})
		} else {
			s.publisher.Publish(events.Event{Kind: events.ConversationLoaded, ConversationID: currentID})
		}
	}
	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	return err
}

// DeleteAll empties the store and clears the current selection
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	s.conversations = nil
	s.currentID = ""
	err := s.saveLocked()
	s.mu.Unlock()

	s.logger.Info("deleted all conversations")
	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	s.publisher.Publish(events.Event{Kind: events.Welcome})
	return err
}

// Load makes id the current conversation and returns it
func (s *Store) Load(id string) (Conversation, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.currentID = id
	out := s.conversations[idx].clone()
	s.mu.Unlock()

	s.publisher.Publish(events.Event{Kind: events.ConversationLoaded, ConversationID: id})
	return out, nil
}

// Get returns a copy of the conversation with id without changing the selection
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.conversations[idx].clone(), nil
}

// Current returns the current conversation, if any
func (s *Store) Current() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(s.currentID)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.conversations[idx].clone(), true
}

// CurrentID returns the id of the current conversation, or ""
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// All returns copies of every conversation in store order
func (s *Store) All() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.clone()
	}
	return out
}

// List returns the list view in store order
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = Summary{
			ID:      c.ID,
			Title:   c.Title,
			Preview: c.Preview(),
			Current: c.ID == s.currentID,
		}
	}
	return out
}

// Append adds msg to the end of conversation id and persists
func (s *Store) Append(id string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := s.conversations[idx]
	c.Messages = append(c.Messages, msg)
	err := s.saveLocked()
	s.mu.Unlock()

	s.publisher.Publish(events.Event{
		Kind:           events.MessageAppended,
		ConversationID: id,
		Role:           string(msg.Role),
		Text:           msg.Content,
	})
	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	return err
}

// SetTitle overwrites the title of conversation id and persists
func (s *Store) SetTitle(id, title string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.conversations[idx].Title = title
	err := s.saveLocked()
	s.mu.Unlock()

	s.logger.Info("conversation retitled", "conversation_id", id, "title", title)
	s.publisher.Publish(events.Event{Kind: events.TitleChanged, ConversationID: id, Title: title})
	s.publisher.Publish(events.Event{Kind: events.ConversationsChanged})
	return err
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// nextID derives an id from the creation time in milliseconds, bumping it
// until it is unique.
func (s *Store) nextID() string {
	n := s.now().UnixMilli()
	for {
		id := strconv.FormatInt(n, 10)
		if s.indexLocked(id) < 0 {
			return id
		}
		n++
	}
}

func (s *Store) saveLocked() error {
	conversations := s.conversations
	if conversations == nil {
		conversations = []*Conversation{}
	}
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	if err := s.kv.Put(s.key, data); err != nil {
		s.logger.Error("failed to save conversations", "error", err)
		return fmt.Errorf("failed to save conversations: %w", err)
	}
	return nil
}
