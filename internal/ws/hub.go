// Package ws is the websocket transport shared by the chat, notification
// and post hubs: per-channel session registry, buffered per-session
// writers, room membership and the connection read loop.
package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/room"
)

// Hub is one real-time channel. It ties together which users are
// connected, how to write to each session and which rooms they joined.
type Hub struct {
	name     string
	registry *Registry
	conns    *ConnManager
	rooms    *room.Membership
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// HubStats is reported on the health endpoint.
type HubStats struct {
	Users    int       `json:"users"`
	Sessions int       `json:"sessions"`
	Rooms    int       `json:"rooms"`
	Conns    ConnStats `json:"conns"`
}

// NewHub creates the hub for channel name.
func NewHub(name string, log zerolog.Logger, m *metrics.Metrics, opts ...ConnManagerOption) *Hub {
	log = log.With().Str("channel", name).Logger()
	opts = append([]ConnManagerOption{WithLogger(log), WithMetrics(m)}, opts...)
	return &Hub{
		name:     name,
		registry: NewRegistry(),
		conns:    NewConnManager(name, opts...),
		rooms:    room.NewMembership(),
		log:      log,
		metrics:  m,
	}
}

func (h *Hub) Name() string { return h.name }

func (h *Hub) Registry() *Registry { return h.registry }

// Register starts the session's writer and records it for its user. first
// is true when the user had no other session on this channel.
func (h *Hub) Register(s *Session) (ctx context.Context, first bool, err error) {
	ctx, err = h.conns.Add(s)
	if err != nil {
		return nil, false, err
	}
	first = h.registry.Add(s.UserID, s.ID)
	h.metrics.SessionOpened(h.name)
	return ctx, first, nil
}

// Unregister removes the session from its rooms, stops its writer and drops
// it from the registry. last is true when the user has no session left.
func (h *Hub) Unregister(s *Session) (last bool) {
	h.rooms.LeaveAll(s.ID)
	h.conns.Remove(s)
	last = h.registry.Remove(s.UserID, s.ID)
	h.metrics.SessionClosed(h.name)
	return last
}

// Touch marks the session as active for idle reaping.
func (h *Hub) Touch(s *Session) {
	h.conns.TouchActivity(s.ID)
}

func (h *Hub) Join(roomKey string, s *Session) bool {
	return h.rooms.Join(roomKey, s.ID)
}

func (h *Hub) Leave(roomKey string, s *Session) bool {
	return h.rooms.Leave(roomKey, s.ID)
}

func (h *Hub) InRoom(roomKey string, s *Session) bool {
	return h.rooms.IsMember(roomKey, s.ID)
}

func (h *Hub) RoomSize(roomKey string) int {
	return h.rooms.Count(roomKey)
}

// Reply sends a direct response to the command currently being handled on
// s. It must be called from within Channel.Handle.
func (h *Hub) Reply(s *Session, typ string, payload any) error {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	env.ID = s.cmdID
	s.replied = true
	h.SendToSessions([]string{s.ID}, env)
	return nil
}

// SendToSession queues env for one session.
func (h *Hub) SendToSession(sessionID string, env Envelope) bool {
	return h.SendToSessions([]string{sessionID}, env) == 1
}

// SendToUser queues env for every live session of userID and returns how
// many sessions it was queued for.
func (h *Hub) SendToUser(userID int64, env Envelope) int {
	return h.SendToSessions(h.registry.Sessions(userID), env)
}

// Exclude names the sessions a room or channel-wide send skips.
type Exclude struct {
	Session string // one session, usually the sender's
	User    int64  // every session of this user; zero skips nobody
}

// SendToRoom queues env for every session in the room not named by ex.
// suppressed counts the sessions skipped because ex.User owns them.
func (h *Hub) SendToRoom(roomKey string, env Envelope, ex Exclude) (sent, suppressed int) {
	ids, suppressed := h.exclude(h.rooms.Members(roomKey), ex)
	return h.SendToSessions(ids, env), suppressed
}

// SendToAll is SendToRoom for every session on the channel.
func (h *Hub) SendToAll(env Envelope, ex Exclude) (sent, suppressed int) {
	ids, suppressed := h.exclude(h.conns.SessionIDs(), ex)
	return h.SendToSessions(ids, env), suppressed
}

// SendToSessions encodes env once and queues it for each session id. The
// target list is a snapshot; no hub lock is held while sending.
func (h *Hub) SendToSessions(ids []string, env Envelope) int {
	if len(ids) == 0 {
		return 0
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("failed to marshal envelope")
		return 0
	}
	sent := 0
	for _, id := range ids {
		if h.conns.Send(id, data) {
			sent++
		}
	}
	h.metrics.Pushed(h.name, sent)
	return sent
}

func (h *Hub) Stats() HubStats {
	conns := h.conns.Stats()
	return HubStats{
		Users:    h.registry.Users(),
		Sessions: conns.Active,
		Rooms:    h.rooms.Rooms(),
		Conns:    conns,
	}
}

// Shutdown closes every connection on the channel.
func (h *Hub) Shutdown() {
	h.conns.Shutdown()
}

func (h *Hub) exclude(ids []string, ex Exclude) ([]string, int) {
	if ex.Session != "" {
		ids = lo.Without(ids, ex.Session)
	}
	if ex.User == 0 {
		return ids, 0
	}
	return h.conns.Partition(ids, ex.User)
}
