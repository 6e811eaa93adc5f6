package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// recordConn is an in-memory Conn that records every frame written to it.
type recordConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed websocket.StatusCode
	block  chan struct{}
	fail   error
}

func (c *recordConn) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	c.frames = append(c.frames, append([]byte(nil), p...))
	c.mu.Unlock()
	return nil
}

func (c *recordConn) Close(code websocket.StatusCode, _ string) error {
	c.mu.Lock()
	c.closed = code
	c.mu.Unlock()
	return nil
}

func (c *recordConn) closeCode() websocket.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// waitEnvelopes waits until at least n frames were written and decodes them.
func (c *recordConn) waitEnvelopes(t *testing.T, n int) []Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		have := len(c.frames)
		c.mu.Unlock()
		if have >= n || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) < n {
		t.Fatalf("expected %d frames, got %d", n, len(c.frames))
	}
	envs := make([]Envelope, len(c.frames))
	for i, f := range c.frames {
		if err := json.Unmarshal(f, &envs[i]); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	return envs
}

func newRecordedSession(userID int64) (*Session, *recordConn) {
	conn := &recordConn{}
	return NewSession(userID, "test", conn), conn
}

func TestConnManagerAddRemove(t *testing.T) {
	cm := NewConnManager("test")
	s, _ := newRecordedSession(1)

	ctx, err := cm.Add(s)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cm.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", cm.Count())
	}

	if !cm.Remove(s) {
		t.Fatal("remove should report the session was registered")
	}
	if cm.Remove(s) {
		t.Fatal("double remove should report false")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after remove")
	}
	if cm.Send(s.ID, []byte("{}")) {
		t.Fatal("send to removed session should fail")
	}
}

func TestConnManagerSend(t *testing.T) {
	cm := NewConnManager("test")
	s, conn := newRecordedSession(1)
	if _, err := cm.Add(s); err != nil {
		t.Fatal(err)
	}
	defer cm.Remove(s)

	if !cm.Send(s.ID, []byte(`{"type":"Ping"}`)) {
		t.Fatal("send should succeed")
	}
	envs := conn.waitEnvelopes(t, 1)
	if envs[0].Type != "Ping" {
		t.Errorf("expected Ping, got %q", envs[0].Type)
	}
}

func TestConnManagerSendBufferFull(t *testing.T) {
	cm := NewConnManager("test", WithSendBuffer(2))
	conn := &recordConn{block: make(chan struct{})}
	s := NewSession(1, "test", conn)
	if _, err := cm.Add(s); err != nil {
		t.Fatal(err)
	}
	defer func() {
		close(conn.block)
		cm.Remove(s)
	}()

	// The pump holds one envelope in a blocked write; two more fill the buffer.
	sent := 0
	for i := 0; i < 10; i++ {
		if cm.Send(s.ID, []byte("{}")) {
			sent++
		}
	}
	if sent < 2 || sent > 3 {
		t.Fatalf("expected 2 or 3 queued sends, got %d", sent)
	}
	if got := cm.Stats().DroppedMessages; got != int64(10-sent) {
		t.Fatalf("expected %d dropped, got %d", 10-sent, got)
	}
}

func TestConnManagerWriteFailureClosesConn(t *testing.T) {
	cm := NewConnManager("test")
	conn := &recordConn{fail: errors.New("broken pipe")}
	s := NewSession(1, "test", conn)
	if _, err := cm.Add(s); err != nil {
		t.Fatal(err)
	}
	defer cm.Remove(s)

	cm.Send(s.ID, []byte("{}"))

	deadline := time.Now().Add(2 * time.Second)
	for conn.closeCode() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.closeCode() != websocket.StatusInternalError {
		t.Fatalf("expected close with internal error, got %v", conn.closeCode())
	}
}

func TestConnManagerMaxConns(t *testing.T) {
	cm := NewConnManager("test", WithMaxConns(1))
	a, _ := newRecordedSession(1)
	b, _ := newRecordedSession(2)

	if _, err := cm.Add(a); err != nil {
		t.Fatal(err)
	}
	if _, err := cm.Add(b); !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
	if cm.Stats().Rejected != 1 {
		t.Fatalf("expected 1 rejected, got %d", cm.Stats().Rejected)
	}
}

func TestConnManagerShutdown(t *testing.T) {
	cm := NewConnManager("test")
	s, conn := newRecordedSession(1)
	ctx, err := cm.Add(s)
	if err != nil {
		t.Fatal(err)
	}

	cm.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled on shutdown")
	}
	if conn.closeCode() != websocket.StatusGoingAway {
		t.Fatalf("expected going away, got %v", conn.closeCode())
	}
	if cm.Count() != 0 {
		t.Fatalf("expected 0 connections, got %d", cm.Count())
	}

	late, _ := newRecordedSession(2)
	if _, err := cm.Add(late); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestConnManagerReapIdle(t *testing.T) {
	cm := NewConnManager("test")
	cm.idleTTL = time.Minute
	idle, idleConn := newRecordedSession(1)
	busy, busyConn := newRecordedSession(2)
	cm.Add(idle)
	cm.Add(busy)

	cm.TouchActivity(busy.ID)
	cm.mu.Lock()
	cm.sessions[idle.ID].lastActive = time.Now().Add(-2 * time.Minute)
	cm.mu.Unlock()

	if n := cm.reapIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if idleConn.closeCode() != websocket.StatusPolicyViolation {
		t.Errorf("idle conn should be closed, got %v", idleConn.closeCode())
	}
	if busyConn.closeCode() != 0 {
		t.Errorf("busy conn should stay open, got %v", busyConn.closeCode())
	}
	if cm.Stats().IdleReaped != 1 {
		t.Errorf("expected IdleReaped 1, got %d", cm.Stats().IdleReaped)
	}
}
