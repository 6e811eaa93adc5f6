package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Conn is the part of *websocket.Conn a session writes to.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one authenticated connection to a hub channel. It is created
// on connect and discarded on disconnect; ids are never reused.
type Session struct {
	ID       string
	UserID   int64
	Channel  string
	OpenedAt time.Time

	conn Conn
	send chan []byte

	// Only touched by the session's read loop.
	cmdID   string
	replied bool
}

// NewSession creates a session for userID on channel writing to conn.
func NewSession(userID int64, channel string, conn Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Channel:  channel,
		OpenedAt: time.Now().UTC(),
		conn:     conn,
	}
}

// begin marks the start of a command on this session's read loop.
func (s *Session) begin(env Envelope) {
	s.cmdID = env.ID
	s.replied = false
}
