// Package eventfeed streams state-change events to WebSocket subscribers so
// an external UI can render the chat without polling.
package eventfeed

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"PickleChat/internal/conversation"
	"PickleChat/internal/events"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

// Message is the JSON frame sent to subscribers. Conversations is set on
// list refreshes and on the first frame after connecting.
type Message struct {
	Event         events.Event           `json:"event"`
	Conversations []conversation.Summary `json:"conversations,omitempty"`
}

// Server is an http.Handler that upgrades requests to WebSocket feeds
type Server struct {
	upgrader websocket.Upgrader
	snapshot func() []conversation.Summary
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// NewServer creates a feed. snapshot returns the current conversation list.
func NewServer(snapshot func() []conversation.Summary, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		snapshot: snapshot,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams events until the client leaves
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade event feed connection", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	c.send <- Message{
		Event:         events.Event{Kind: events.ConversationsChanged},
		Conversations: s.snapshot(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("event feed client connected", "remote", r.RemoteAddr, "clients", count)

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop discards inbound frames and notices disconnects
func (s *Server) readLoop(c *client) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Warn("failed to write event", "error", err)
			s.remove(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.close()
		s.logger.Info("event feed client disconnected")
	}
}

// Publish forwards e to every connected client. Clients that fall behind
// are disconnected rather than blocking the publisher.
func (s *Server) Publish(e events.Event) {
	msg := Message{Event: e}
	if e.Kind == events.ConversationsChanged {
		msg.Conversations = s.snapshot()
	}

	s.mu.Lock()
	var slow []*client
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.logger.Warn("dropping slow event feed client")
		s.remove(c)
	}
}

// Clients returns the number of connected subscribers
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and refuses new ones
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close()
	}
	return nil
}
