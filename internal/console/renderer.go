// Package console renders conversation state to a terminal and adapts typed
// input and printed output to the speech interfaces.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"PickleChat/internal/conversation"
	"PickleChat/internal/events"
)

// Source looks up conversations for display
type Source interface {
	Get(id string) (conversation.Conversation, error)
}

// Renderer prints bus events as terminal output
type Renderer struct {
	out    io.Writer
	source Source

	mu       sync.Mutex
	shown    string // text of the reply being revealed
	revealed bool   // the next bot append was already shown by a reveal
}

// NewRenderer creates a renderer that reads conversations from source
func NewRenderer(out io.Writer, source Source) *Renderer {
	return &Renderer{out: out, source: source}
}

// Render handles a single event; subscribe it to an events.Bus
func (r *Renderer) Render(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case events.Welcome:
		fmt.Fprintln(r.out, "Create a chat to get started (/new, or just type).")
	case events.ConversationLoaded:
		r.renderConversation(e.ConversationID)
	case events.RevealProgress:
		if r.shown == "" {
			fmt.Fprint(r.out, "Pickle: ")
		}
		fmt.Fprint(r.out, strings.TrimPrefix(e.Text, r.shown))
		r.shown = e.Text
	case events.RevealDone:
		fmt.Fprint(r.out, "\n\n")
		r.shown = ""
		r.revealed = true
	case events.MessageAppended:
		if e.Role != string(conversation.RoleBot) {
			return
		}
		if r.revealed {
			r.revealed = false
			return
		}
		fmt.Fprintf(r.out, "Pickle: %s\n\n", e.Text)
	case events.MessageDisplayed:
		fmt.Fprintln(r.out, e.Text)
	case events.TitleChanged:
		fmt.Fprintf(r.out, "(conversation renamed to %q)\n", e.Title)
	case events.CallState:
		fmt.Fprintf(r.out, "[call: %s]\n", e.State)
	case events.CallEnded:
		fmt.Fprintf(r.out, "Transcript saved. Use /transcript %d to show it.\n", e.Index+1)
	case events.TranscriptToggled:
		if e.Visible {
			fmt.Fprintf(r.out, "--- transcript %d ---\n%s\n---\n", e.Index+1, e.Text)
		} else {
			fmt.Fprintf(r.out, "(transcript %d hidden)\n", e.Index+1)
		}
	case events.CaptureError:
		// logged by the call session; capture restarts on its own
	}
}

func (r *Renderer) renderConversation(id string) {
	c, err := r.source.Get(id)
	if err != nil {
		return
	}
	fmt.Fprintf(r.out, "== %s (%s) ==\n", c.Title, c.ID)
	for _, m := range c.Messages {
		fmt.Fprintf(r.out, "%s: %s\n", Sender(m.Role), m.Content)
	}
}

// Sender is the display name for role
func Sender(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return "You"
	case conversation.RoleBot:
		return "Pickle"
	default:
		return "System"
	}
}

// PrintList writes the conversation list
func PrintList(out io.Writer, list []conversation.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No chats yet. Type a message or /new to start.")
		return
	}
	for _, s := range list {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %s\n    %s\n", marker, s.ID, s.Title, s.Preview)
	}
}
