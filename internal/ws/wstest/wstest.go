// Package wstest provides in-memory websocket sessions for testing code
// built on package ws.
package wstest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/christopherjohns/socialhub/internal/ws"
)

// Conn records every envelope written to it.
type Conn struct {
	mu     sync.Mutex
	frames [][]byte
	closed websocket.StatusCode
}

func (c *Conn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte(nil), p...))
	c.mu.Unlock()
	return nil
}

func (c *Conn) Close(code websocket.StatusCode, _ string) error {
	c.mu.Lock()
	c.closed = code
	c.mu.Unlock()
	return nil
}

// Envelopes returns everything written so far.
func (c *Conn) Envelopes(t testing.TB) []ws.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	envs := make([]ws.Envelope, len(c.frames))
	for i, f := range c.frames {
		if err := json.Unmarshal(f, &envs[i]); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	return envs
}

// Wait blocks until at least n envelopes were written.
func (c *Conn) Wait(t testing.TB, n int) []ws.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		have := len(c.frames)
		c.mu.Unlock()
		if have >= n {
			return c.Envelopes(t)
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d envelopes, got %d", n, have)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WaitType blocks until an envelope of type typ was written and returns
// the first one.
func (c *Conn) WaitType(t testing.TB, typ string) ws.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, env := range c.Envelopes(t) {
			if env.Type == typ {
				return env
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %s envelope received", typ)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Count returns how many envelopes of type typ were written.
func (c *Conn) Count(t testing.TB, typ string) int {
	t.Helper()
	n := 0
	for _, env := range c.Envelopes(t) {
		if env.Type == typ {
			n++
		}
	}
	return n
}

// Settle waits long enough for queued envelopes to be flushed. Used before
// asserting that nothing was delivered.
func Settle() {
	time.Sleep(50 * time.Millisecond)
}

// Connect registers a new session for userID on hub and reports whether it
// was the user's first.
func Connect(t testing.TB, hub *ws.Hub, userID int64) (*ws.Session, *Conn, bool) {
	t.Helper()
	conn := &Conn{}
	s := ws.NewSession(userID, hub.Name(), conn)
	_, first, err := hub.Register(s)
	if err != nil {
		t.Fatalf("register session: %v", err)
	}
	return s, conn, first
}
