package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/ws"
)

// Notification commands.
const (
	CmdMarkNotificationAsRead = "MarkNotificationAsRead"
	CmdMarkAllAsRead          = "MarkAllAsRead"
)

// NotificationStore is the part of notification.Store the channel needs.
type NotificationStore interface {
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, userID, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
}

type notificationRef struct {
	NotificationID int64 `json:"notification_id" validate:"required,gt=0"`
}

// UnreadCount is the payload of UnreadNotificationsCount.
type UnreadCount struct {
	Count int `json:"count"`
}

// Notifications is the /hubs/notifications channel. Notification records
// themselves are pushed by the router; this channel keeps unread counts
// in sync.
type Notifications struct {
	hub   *ws.Hub
	store NotificationStore
	log   zerolog.Logger
}

func NewNotifications(hub *ws.Hub, store NotificationStore, log zerolog.Logger) *Notifications {
	return &Notifications{
		hub:   hub,
		store: store,
		log:   log.With().Str("component", "notification_hub").Logger(),
	}
}

// OnConnect sends the current unread count to the new session only.
func (n *Notifications) OnConnect(ctx context.Context, s *ws.Session, _ bool) error {
	count, err := n.store.UnreadCount(ctx, s.UserID)
	if err != nil {
		n.log.Error().Err(err).Int64("user_id", s.UserID).Msg("failed to count unread notifications")
		return nil
	}
	env, err := ws.NewEnvelope(ws.TypeUnreadNotificationsCount, UnreadCount{Count: count})
	if err != nil {
		return err
	}
	n.hub.SendToSession(s.ID, env)
	return nil
}

func (n *Notifications) OnDisconnect(context.Context, *ws.Session, bool) {}

func (n *Notifications) Handle(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	switch env.Type {
	case CmdMarkNotificationAsRead:
		var req notificationRef
		if err := decode(env, &req); err != nil {
			return err
		}
		if err := n.store.MarkAsRead(ctx, s.UserID, req.NotificationID); err != nil {
			return err
		}
		n.PushUnreadCount(ctx, s.UserID)
		return nil
	case CmdMarkAllAsRead:
		if err := n.store.MarkAllAsRead(ctx, s.UserID); err != nil {
			return err
		}
		n.pushCount(s.UserID, 0)
		return nil
	default:
		return unknownCommand(env)
	}
}

// PushUnreadCount sends userID's current unread count to all of their
// notification sessions.
func (n *Notifications) PushUnreadCount(ctx context.Context, userID int64) {
	count, err := n.store.UnreadCount(ctx, userID)
	if err != nil {
		n.log.Error().Err(err).Int64("user_id", userID).Msg("failed to count unread notifications")
		return
	}
	n.pushCount(userID, count)
}

func (n *Notifications) pushCount(userID int64, count int) {
	env, err := ws.NewEnvelope(ws.TypeUnreadNotificationsCount, UnreadCount{Count: count})
	if err != nil {
		return
	}
	n.hub.SendToUser(userID, env)
}
