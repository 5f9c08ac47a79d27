// Package chat drives a text conversation: it appends user turns, asks the
// completion service for replies and titles, and records the results.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PickleChat/internal/backend"
	"PickleChat/internal/conversation"
	"PickleChat/internal/events"
)

const (
	PersonaPrompt = "You are Pickle, a helpful text assistant. Use the entire conversation so far to provide context."
	TitlePrompt   = "Produce a 2 - 1 word summary of the entire conversation so far. do not copy any user or assistant line. Return only the short summary, nothing else. and do not use **test** to try make the title bold"
	FallbackReply = "Sorry, something went wrong."

	// titleTurn is the number of user messages after which a title is requested
	titleTurn = 3
)

// Completer is the completion service as seen by the controller
type Completer interface {
	Complete(ctx context.Context, messages []backend.Message, opts backend.Options) (string, error)
}

// CallGate reports whether a voice call currently owns the input
type CallGate interface {
	Active() bool
}

// Options tunes a Controller
type Options struct {
	RevealDelay  time.Duration
	TitleOptions backend.Options
}

// DefaultTitleOptions are the sampling parameters of the title request
func DefaultTitleOptions() backend.Options {
	return backend.Options{
		Temperature:     backend.Float(1.2),
		PresencePenalty: backend.Float(1.0),
		MaxTokens:       20,
	}
}

// Controller mediates text turns between the store and the completion service
type Controller struct {
	store     *conversation.Store
	completer Completer
	calls     CallGate
	publisher events.Publisher
	revealer  Revealer
	titleOpts backend.Options
	logger    *slog.Logger
}

// NewController creates a controller. calls and publisher may be nil.
func NewController(store *conversation.Store, completer Completer, calls CallGate, publisher events.Publisher, opts Options, logger *slog.Logger) *Controller {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		completer: completer,
		calls:     calls,
		publisher: publisher,
		revealer:  Revealer{Delay: opts.RevealDelay},
		titleOpts: opts.TitleOptions,
		logger:    logger,
	}
}

// SendUserMessage appends text as a user turn to the current conversation
// (creating one if needed), retitles the conversation after its third user
// turn, and appends the assistant's reply or a fallback message. Blank
// input and input during a call are ignored.
func (c *Controller) SendUserMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.calls != nil && c.calls.Active() {
		c.logger.Debug("ignoring text message during call")
		return nil
	}

	conv, ok := c.store.Current()
	if !ok {
		created, err := c.store.Create()
		if err != nil {
			c.logger.Error("failed to persist new conversation", "error", err)
		}
		conv = created
	}
	id := conv.ID

	if err := c.store.Append(id, conversation.Message{Role: conversation.RoleUser, Content: text}); err != nil {
		c.logger.Error("failed to persist user message", "conversation_id", id, "error", err)
	}

	conv, err := c.store.Get(id)
	if err != nil {
		return fmt.Errorf("failed to reload conversation: %w", err)
	}

	if conv.CountRole(conversation.RoleUser) == titleTurn {
		c.generateTitle(ctx, conv)
	}

	reply, err := c.reply(ctx, conv)
	if err != nil {
		c.logger.Error("send message error", "conversation_id", id, "error", err)
		return c.appendBot(id, FallbackReply)
	}

	c.revealer.Reveal(ctx, reply, func(partial string) {
		c.publisher.Publish(events.Event{Kind: events.RevealProgress, ConversationID: id, Text: partial})
	})
	c.publisher.Publish(events.Event{Kind: events.RevealDone, ConversationID: id, Text: reply})

	return c.appendBot(id, reply)
}

func (c *Controller) reply(ctx context.Context, conv conversation.Conversation) (string, error) {
	messages := append([]backend.Message{{Role: backend.RoleSystem, Content: PersonaPrompt}}, History(conv.Messages)...)
	reply, err := c.completer.Complete(ctx, messages, backend.Options{})
	if err != nil {
		return "", fmt.Errorf("failed to get reply: %w", err)
	}
	return reply, nil
}

func (c *Controller) generateTitle(ctx context.Context, conv conversation.Conversation) {
	messages := append([]backend.Message{{Role: backend.RoleSystem, Content: TitlePrompt}}, History(conv.Messages)...)
	raw, err := c.completer.Complete(ctx, messages, c.titleOpts)
	if err != nil {
		c.logger.Warn("failed to generate title", "conversation_id", conv.ID, "error", err)
		return
	}
	if err := c.store.SetTitle(conv.ID, ShortTitle(raw)); err != nil {
		c.logger.Error("failed to persist title", "conversation_id", conv.ID, "error", err)
	}
}

func (c *Controller) appendBot(id, content string) error {
	if err := c.store.Append(id, conversation.Message{Role: conversation.RoleBot, Content: content}); err != nil {
		return fmt.Errorf("failed to save reply: %w", err)
	}
	return nil
}

// NewChat starts an empty conversation and makes it current
func (c *Controller) NewChat() (conversation.Conversation, error) {
	return c.store.Create()
}

// LoadConversation switches the current conversation
func (c *Controller) LoadConversation(id string) (conversation.Conversation, error) {
	return c.store.Load(id)
}

// DeleteConversation removes one conversation
func (c *Controller) DeleteConversation(id string) error {
	return c.store.Delete(id)
}

// DeleteAll removes every conversation
func (c *Controller) DeleteAll() error {
	return c.store.DeleteAll()
}

// History maps stored messages to service messages: Bot turns become
// assistant turns, everything else is sent as the user.
func History(messages []conversation.Message) []backend.Message {
	out := make([]backend.Message, len(messages))
	for i, m := range messages {
		role := backend.RoleUser
		if m.Role == conversation.RoleBot {
			role = backend.RoleAssistant
		}
		out[i] = backend.Message{Role: role, Content: m.Content}
	}
	return out
}
