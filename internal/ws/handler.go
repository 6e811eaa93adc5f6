package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/ratelimit"
)

// maxFrameSize caps inbound frames; commands are small JSON objects.
const maxFrameSize = 64 << 10

// Authenticator resolves the user behind an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (int64, error)
}

// Channel is the behaviour of one hub: what happens on connect and
// disconnect, and how client commands are handled.
type Channel interface {
	OnConnect(ctx context.Context, s *Session, first bool) error
	OnDisconnect(ctx context.Context, s *Session, last bool)
	Handle(ctx context.Context, s *Session, env Envelope) error
}

// Handler upgrades HTTP requests to websocket sessions on one hub.
type Handler struct {
	hub     *Hub
	channel Channel
	auth    Authenticator
	limiter *ratelimit.Limiter
	origins []string
	log     zerolog.Logger
	metrics *metrics.Metrics
}

type HandlerOption func(*Handler)

// WithOriginPatterns restricts cross-origin upgrades. Without patterns any
// origin is accepted.
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(h *Handler) {
		h.origins = patterns
	}
}

// WithCommandLimit applies a per-session sliding-window limit to commands.
func WithCommandLimit(max int, window time.Duration) HandlerOption {
	return func(h *Handler) {
		h.limiter = ratelimit.New(max, window)
	}
}

func NewHandler(hub *Hub, channel Channel, auth Authenticator, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:     hub,
		channel: channel,
		auth:    auth,
		log:     hub.log,
		metrics: hub.metrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP authenticates the caller, upgrades the connection and runs the
// session until either side closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: len(h.origins) == 0,
	})
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(maxFrameSize)
	defer conn.CloseNow()

	s := NewSession(userID, h.hub.Name(), conn)
	log := h.log.With().Str("session_id", s.ID).Int64("user_id", userID).Logger()

	connCtx, first, err := h.hub.Register(s)
	if err != nil {
		status := websocket.StatusTryAgainLater
		if errors.Is(err, ErrShuttingDown) {
			status = websocket.StatusGoingAway
		}
		conn.Close(status, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(connCtx, cancel)
	defer func() {
		stop()
		cancel()
		last := h.hub.Unregister(s)
		h.limiter.Forget(s.ID)
		h.channel.OnDisconnect(context.WithoutCancel(r.Context()), s, last)
		log.Debug().Bool("last", last).Msg("session closed")
	}()

	log.Debug().Bool("first", first).Msg("session opened")
	if err := h.channel.OnConnect(ctx, s, first); err != nil {
		log.Error().Err(err).Msg("connect handler failed")
		conn.Close(websocket.StatusInternalError, "connect failed")
		return
	}

	h.readLoop(ctx, s, conn)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop reads envelopes until the connection closes or ctx is cancelled.
// Commands run sequentially per session.
func (h *Handler) readLoop(ctx context.Context, s *Session, conn *websocket.Conn) {
	for {
		var env Envelope
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		h.hub.Touch(s)

		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			h.sendError(s, env, apperr.Invalid("malformed envelope"))
			continue
		}
		if !h.limiter.Allow(s.ID) {
			h.metrics.Command(h.hub.Name(), env.Type, "rate_limited")
			h.sendErrorCode(s, env, "rate_limited", "too many commands, slow down")
			continue
		}

		s.begin(env)
		err = h.channel.Handle(ctx, s, env)
		h.metrics.Command(h.hub.Name(), env.Type, resultCode(err))
		switch {
		case err != nil:
			if apperr.Status(err) == http.StatusInternalServerError {
				h.log.Error().Err(err).
					Str("session_id", s.ID).
					Str("command", env.Type).
					Msg("command failed")
			}
			h.sendError(s, env, err)
		case !s.replied:
			ack, _ := NewEnvelope(TypeAck, AckPayload{Command: env.Type, ID: env.ID})
			ack.ID = env.ID
			h.hub.SendToSession(s.ID, ack)
		}
	}
}

func (h *Handler) sendError(s *Session, cmd Envelope, err error) {
	h.sendErrorCode(s, cmd, apperr.Code(err), apperr.Public(err))
}

func (h *Handler) sendErrorCode(s *Session, cmd Envelope, code, msg string) {
	env, err := NewEnvelope(TypeError, ErrorPayload{
		Command: cmd.Type,
		ID:      cmd.ID,
		Code:    code,
		Message: msg,
	})
	if err != nil {
		return
	}
	env.ID = cmd.ID
	h.hub.SendToSession(s.ID, env)
}

func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Code(err)
}
