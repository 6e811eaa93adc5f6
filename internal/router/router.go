// Package router delivers domain events to live sessions and persists
// notification records for recipients.
package router

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/christopherjohns/socialhub/internal/metrics"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/ws"
)

const (
	defaultConcurrency     = 16
	defaultDeliveryTimeout = 5 * time.Second
)

// NotificationStore persists notification records.
type NotificationStore interface {
	Create(ctx context.Context, recipient int64, actor *int64, title, message string,
		typ models.NotificationType, data map[string]any) (*models.Notification, error)
}

// Router fans events out to the hubs. It never returns delivery errors to
// the caller: the originating action has already been committed.
type Router struct {
	hubs            map[string]*ws.Hub
	store           NotificationStore
	concurrency     int
	deliveryTimeout time.Duration
	log             zerolog.Logger
	metrics         *metrics.Metrics
}

type Option func(*Router)

// WithConcurrency bounds how many recipients are delivered to at once.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithDeliveryTimeout bounds each notification write.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.deliveryTimeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) {
		r.log = log
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New creates a router over hubs, keyed by hub name.
func New(hubs []*ws.Hub, store NotificationStore, opts ...Option) *Router {
	r := &Router{
		hubs:            lo.KeyBy(hubs, func(h *ws.Hub) string { return h.Name() }),
		store:           store,
		concurrency:     defaultConcurrency,
		deliveryTimeout: defaultDeliveryTimeout,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "router").Logger()
	return r
}

// Hub returns the hub serving channel, or nil.
func (r *Router) Hub(channel string) *ws.Hub {
	return r.hubs[channel]
}

// Route delivers ev. Pushes are non-blocking enqueues; notification records
// are written even if ctx is cancelled, bounded by the delivery timeout.
func (r *Router) Route(ctx context.Context, ev Event) Result {
	log := r.log.With().
		Str("event", string(ev.Kind)).
		Str("channel", ev.Channel).
		Int64("actor", ev.Actor).
		Logger()

	switch ev.targets() {
	case 0:
		return Result{}
	case 1:
	default:
		log.Error().Msg("event names more than one target, dropping")
		return Result{}
	}

	var (
		hub *ws.Hub
		env ws.Envelope
	)
	if ev.Type != "" {
		hub = r.hubs[ev.Channel]
		if hub == nil {
			log.Error().Msg("no hub for channel, dropping")
			return Result{}
		}
		var err error
		if env, err = ws.NewEnvelope(ev.Type, ev.Payload); err != nil {
			log.Error().Err(err).Str("type", ev.Type).Msg("failed to encode event")
			return Result{}
		}
	}

	if ev.Room != "" || ev.Broadcast {
		if hub == nil {
			return Result{}
		}
		ex := ws.Exclude{Session: ev.ExceptSession, User: ev.Actor}
		var res Result
		if ev.Room != "" {
			res.Pushed, res.Suppressed = hub.SendToRoom(ev.Room, env, ex)
		} else {
			res.Pushed, res.Suppressed = hub.SendToAll(env, ex)
		}
		for range res.Suppressed {
			r.metrics.Suppressed()
		}
		return res
	}

	recipients := lo.Uniq(ev.Recipients)
	targets := lo.Without(recipients, ev.Actor)
	res := Result{Suppressed: len(recipients) - len(targets)}
	for range res.Suppressed {
		r.metrics.Suppressed()
	}

	var pushed, persisted atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, userID := range targets {
		g.Go(func() error {
			if hub != nil {
				pushed.Add(int64(hub.SendToUser(userID, env)))
			}
			if ev.Notice != nil && ev.Kind.Notifiable() {
				n, ok := r.notify(ctx, log, ev, userID)
				if ok {
					persisted.Add(1)
					pushed.Add(int64(n))
				}
			}
			return nil
		})
	}
	g.Wait()

	res.Pushed = int(pushed.Load())
	res.Persisted = int(persisted.Load())
	log.Debug().
		Int("recipients", len(targets)).
		Int("pushed", res.Pushed).
		Int("persisted", res.Persisted).
		Msg("event routed")
	return res
}

// notify persists ev.Notice for userID and pushes the stored record to the
// user's notification sessions. It returns how many sessions were pushed to.
func (r *Router) notify(ctx context.Context, log zerolog.Logger, ev Event, userID int64) (int, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.deliveryTimeout)
	defer cancel()

	var actor *int64
	if ev.Actor != 0 {
		actor = &ev.Actor
	}
	n, err := r.store.Create(ctx, userID, actor, ev.Notice.Title, ev.Notice.Message, ev.Notice.Type, ev.Notice.Data)
	if err != nil {
		r.metrics.NotificationFailed()
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to persist notification")
		return 0, false
	}
	r.metrics.NotificationPersisted()

	hub := r.hubs[ChannelNotifications]
	if hub == nil {
		return 0, true
	}
	env, err := ws.NewEnvelope(ws.TypeReceiveNotification, n)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode notification")
		return 0, true
	}
	return hub.SendToUser(userID, env), true
}
