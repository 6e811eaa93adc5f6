package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/socialhub/internal/metrics"
)

const (
	// defaultSendBuffer is the number of envelopes that can be queued per session.
	defaultSendBuffer = 32

	// defaultWriteTimeout is the max time to wait for a single write to complete.
	defaultWriteTimeout = 5 * time.Second

	// idleCheckInterval is how often the idle reaper runs.
	idleCheckInterval = 30 * time.Second
)

var (
	ErrShuttingDown = errors.New("server shutting down")
	ErrAtCapacity   = errors.New("server at capacity")
)

// connEntry holds per-connection metadata alongside the cancel function.
type connEntry struct {
	session    *Session
	cancel     context.CancelFunc
	lastActive time.Time
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int   `json:"active"`
	MaxConns        int   `json:"max_conns"`
	Rejected        int64 `json:"rejected"`
	DroppedMessages int64 `json:"dropped_messages"`
	IdleReaped      int64 `json:"idle_reaped"`
}

// ConnManager owns the write side of every session on a channel: a buffered
// send queue drained by one write goroutine per session, plus connection
// limits, idle detection and graceful shutdown.
type ConnManager struct {
	mu       sync.Mutex
	sessions map[string]*connEntry
	closed   bool

	channel      string
	maxConns     int
	idleTTL      time.Duration
	sendBuffer   int
	writeTimeout time.Duration
	stopIdle     context.CancelFunc
	log          zerolog.Logger
	metrics      *metrics.Metrics

	rejected        atomic.Int64
	droppedMessages atomic.Int64
	idleReaped      atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns sets the maximum number of concurrent connections.
// A value of 0 means unlimited (default).
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// WithIdleTimeout sets how long a connection can be idle before
// it is automatically closed. A value of 0 disables idle reaping (default).
func WithIdleTimeout(d time.Duration) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.idleTTL = d
	}
}

func WithSendBuffer(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		if n > 0 {
			cm.sendBuffer = n
		}
	}
}

func WithWriteTimeout(d time.Duration) ConnManagerOption {
	return func(cm *ConnManager) {
		if d > 0 {
			cm.writeTimeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.log = log
	}
}

func WithMetrics(m *metrics.Metrics) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.metrics = m
	}
}

// NewConnManager creates a connection manager for channel.
func NewConnManager(channel string, opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		sessions:     make(map[string]*connEntry),
		channel:      channel,
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.idleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		cm.stopIdle = cancel
		go cm.idleReapLoop(ctx)
	}
	return cm
}

// Add registers a session and starts its write pump. The returned context
// is cancelled when the session is removed or the manager shuts down.
func (cm *ConnManager) Add(s *Session) (context.Context, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil, ErrShuttingDown
	}
	if cm.maxConns > 0 && len(cm.sessions) >= cm.maxConns {
		cm.rejected.Add(1)
		return nil, ErrAtCapacity
	}

	s.send = make(chan []byte, cm.sendBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	cm.sessions[s.ID] = &connEntry{
		session:    s,
		cancel:     cancel,
		lastActive: time.Now(),
	}

	go cm.writePump(ctx, s)

	return ctx, nil
}

// Remove stops a session's write pump. It reports whether the session was
// still registered.
func (cm *ConnManager) Remove(s *Session) bool {
	cm.mu.Lock()
	entry, ok := cm.sessions[s.ID]
	if ok {
		delete(cm.sessions, s.ID)
	}
	cm.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return ok
}

// Send queues data for the session. It never blocks: a full buffer or an
// unknown session drops the envelope and returns false.
func (cm *ConnManager) Send(sessionID string, data []byte) bool {
	cm.mu.Lock()
	entry, ok := cm.sessions[sessionID]
	cm.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case entry.session.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		cm.metrics.Dropped(cm.channel)
		cm.log.Warn().
			Str("session_id", sessionID).
			Int64("user_id", entry.session.UserID).
			Msg("send buffer full, dropping envelope")
		return false
	}
}

// TouchActivity updates the last-active timestamp for a session.
func (cm *ConnManager) TouchActivity(sessionID string) {
	cm.mu.Lock()
	if entry, ok := cm.sessions[sessionID]; ok {
		entry.lastActive = time.Now()
	}
	cm.mu.Unlock()
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.sessions)
}

// SessionIDs returns a snapshot of all registered session ids.
func (cm *ConnManager) SessionIDs() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ids := make([]string, 0, len(cm.sessions))
	for id := range cm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Partition splits ids into the sessions not owned by userID and a count of
// those that are. Unknown ids are kept; Send drops them later.
func (cm *ConnManager) Partition(ids []string, userID int64) (kept []string, owned int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	kept = make([]string, 0, len(ids))
	for _, id := range ids {
		if e, ok := cm.sessions[id]; ok && e.session.UserID == userID {
			owned++
			continue
		}
		kept = append(kept, id)
	}
	return kept, owned
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.sessions)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
		IdleReaped:      cm.idleReaped.Load(),
	}
}

// Shutdown cancels every write pump and closes each connection with
// StatusGoingAway. Later Adds fail with ErrShuttingDown.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	entries := make([]*connEntry, 0, len(cm.sessions))
	for _, entry := range cm.sessions {
		entries = append(entries, entry)
	}
	cm.sessions = make(map[string]*connEntry)
	cm.mu.Unlock()

	if cm.stopIdle != nil {
		cm.stopIdle()
	}

	for _, entry := range entries {
		entry.cancel()
		entry.session.conn.Close(websocket.StatusGoingAway, ErrShuttingDown.Error())
	}
}

// idleReapLoop periodically checks for and closes idle connections.
func (cm *ConnManager) idleReapLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.reapIdle(time.Now())
		}
	}
}

// reapIdle closes connections that have been idle longer than idleTTL.
func (cm *ConnManager) reapIdle(now time.Time) int {
	cm.mu.Lock()
	var stale []*connEntry
	for id, entry := range cm.sessions {
		if now.Sub(entry.lastActive) > cm.idleTTL {
			stale = append(stale, entry)
			delete(cm.sessions, id)
		}
	}
	cm.mu.Unlock()

	for _, entry := range stale {
		entry.cancel()
		entry.session.conn.Close(websocket.StatusPolicyViolation, "idle timeout")
		cm.idleReaped.Add(1)
		cm.log.Info().
			Str("session_id", entry.session.ID).
			Int64("user_id", entry.session.UserID).
			Msg("reaped idle connection")
	}
	return len(stale)
}

// writePump drains the session's send queue, writing each envelope to the
// connection with a per-write timeout. It exits when ctx is cancelled or a
// write fails; a failed write closes the connection so the read loop ends.
func (cm *ConnManager) writePump(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.send:
			writeCtx, cancel := context.WithTimeout(ctx, cm.writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					cm.log.Warn().Err(err).
						Str("session_id", s.ID).
						Int64("user_id", s.UserID).
						Msg("write failed, closing connection")
					s.conn.Close(websocket.StatusInternalError, "write failed")
				}
				return
			}
		}
	}
}
