package conversation

import (
	"time"
	"unicode/utf8"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser   Role = "User"
	RoleBot    Role = "Bot"
	RoleSystem Role = "System"
)

// DefaultTitle is the title of a conversation that has not been summarised yet
const DefaultTitle = "New Chat"

const previewLength = 50

// Message represents a single chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Conversation represents a persisted chat thread
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Summary is the list view of a conversation
type Summary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
	Current bool   `json:"current"`
}

// CountRole returns how many messages in c were authored by role
func (c Conversation) CountRole(role Role) int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Preview returns the one-line teaser shown in conversation lists
func (c Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "New conversation"
	}
	last := c.Messages[len(c.Messages)-1]
	prefix := "You: "
	if last.Role == RoleBot {
		prefix = "Pickle: "
	}
	return prefix + truncate(last.Content, previewLength) + "..."
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
