// Package presence turns chat connection transitions into online/offline
// state and broadcasts.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/ws"
)

// StatusStore persists a user's online flag and last-seen time.
type StatusStore interface {
	SetOnlineStatus(ctx context.Context, id int64, online bool, at time.Time) error
}

// Router delivers presence events.
type Router interface {
	Route(ctx context.Context, ev router.Event) router.Result
}

// Sessions reports how many live chat sessions a user has. *ws.Registry
// satisfies it.
type Sessions interface {
	Count(userID int64) int
}

// Online is the payload of UserOnline.
type Online struct {
	UserID int64 `json:"user_id"`
}

// Offline is the payload of UserOffline.
type Offline struct {
	UserID   int64     `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Tracker publishes a user's online and offline transitions on the chat
// channel. Calls for one user are serialized, and the live session count
// is re-read under that lock, so a refresh whose new session registers
// before the old one's disconnect is handled never leaves the user offline.
type Tracker struct {
	store    StatusStore
	sessions Sessions
	router   Router
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu    sync.Mutex
	users map[int64]*userState
}

type userState struct {
	mu     sync.Mutex
	refs   int  // guarded by Tracker.mu
	online bool // last published state, guarded by mu
}

func New(store StatusStore, sessions Sessions, r Router, log zerolog.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		store:    store,
		sessions: sessions,
		router:   r,
		log:      log.With().Str("component", "presence").Logger(),
		metrics:  m,
		now:      time.Now,
		users:    make(map[int64]*userState),
	}
}

func (t *Tracker) lock(userID int64) *userState {
	t.mu.Lock()
	st, ok := t.users[userID]
	if !ok {
		st = &userState{}
		t.users[userID] = st
	}
	st.refs++
	t.mu.Unlock()

	st.mu.Lock()
	return st
}

func (t *Tracker) unlock(userID int64, st *userState) {
	online := st.online
	st.mu.Unlock()

	t.mu.Lock()
	st.refs--
	if st.refs == 0 && !online {
		delete(t.users, userID)
	}
	t.mu.Unlock()
}

// Connected marks the user online and tells every other chat session,
// unless the user is already published as online. first is the registry's
// hint; the live session count decides.
func (t *Tracker) Connected(ctx context.Context, s *ws.Session, first bool) {
	st := t.lock(s.UserID)
	defer t.unlock(s.UserID, st)

	if st.online || t.sessions.Count(s.UserID) == 0 {
		return
	}
	st.online = true
	t.metrics.UserOnline()
	if err := t.store.SetOnlineStatus(ctx, s.UserID, true, t.now().UTC()); err != nil {
		t.log.Error().Err(err).Int64("user_id", s.UserID).Msg("failed to persist online status")
	}
	t.router.Route(ctx, router.Event{
		Kind:          router.KindPresence,
		Actor:         s.UserID,
		Channel:       router.ChannelChat,
		Type:          ws.TypeUserOnline,
		Payload:       Online{UserID: s.UserID},
		Broadcast:     true,
		ExceptSession: s.ID,
	})
	t.log.Debug().Int64("user_id", s.UserID).Bool("first", first).Msg("user online")
}

// Disconnected marks the user offline once no chat session is left. A
// stale last=true from a session replaced by a newer one is ignored.
func (t *Tracker) Disconnected(ctx context.Context, s *ws.Session, last bool) {
	if !last {
		return
	}
	st := t.lock(s.UserID)
	defer t.unlock(s.UserID, st)

	if !st.online {
		return
	}
	if n := t.sessions.Count(s.UserID); n > 0 {
		t.log.Debug().Int64("user_id", s.UserID).Int("sessions", n).Msg("user reconnected, staying online")
		return
	}
	st.online = false
	t.metrics.UserOffline()
	seen := t.now().UTC()
	if err := t.store.SetOnlineStatus(ctx, s.UserID, false, seen); err != nil {
		t.log.Error().Err(err).Int64("user_id", s.UserID).Msg("failed to persist offline status")
	}
	t.router.Route(ctx, router.Event{
		Kind:      router.KindPresence,
		Actor:     s.UserID,
		Channel:   router.ChannelChat,
		Type:      ws.TypeUserOffline,
		Payload:   Offline{UserID: s.UserID, LastSeen: seen},
		Broadcast: true,
	})
	t.log.Debug().Int64("user_id", s.UserID).Msg("user offline")
}
