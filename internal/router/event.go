package router

import (
	"github.com/christopherjohns/socialhub/internal/notification"
)

// Channel names. Each is served by one ws.Hub.
const (
	ChannelChat          = "chat"
	ChannelNotifications = "notifications"
	ChannelPosts         = "posts"
)

// Kind classifies a domain event.
type Kind string

const (
	KindPresence     Kind = "presence"
	KindTyping       Kind = "typing"
	KindMessage      Kind = "message"
	KindMessageRead  Kind = "message_read"
	KindRoom         Kind = "room"
	KindComment      Kind = "comment"
	KindLike         Kind = "like"
	KindFriend       Kind = "friend"
	KindNotification Kind = "notification"
)

// Notifiable reports whether events of this kind may leave a notification
// record. Presence and typing are ephemeral.
func (k Kind) Notifiable() bool {
	return k != KindPresence && k != KindTyping
}

// Event is something that happened which connected users should learn
// about. Exactly one of Recipients, Room or Broadcast names the target.
type Event struct {
	Kind  Kind
	Actor int64

	// Channel is the hub the envelope is pushed on. Type is the outbound
	// envelope type; an empty Type means nothing is pushed on Channel.
	Channel string
	Type    string
	Payload any

	Recipients []int64
	Room       string
	Broadcast  bool

	// ExceptSession is skipped for room and broadcast targets. The
	// actor's own sessions are always skipped and counted as suppressed.
	ExceptSession string

	// Notice is persisted for each recipient when Kind is notifiable.
	Notice *notification.Notice
}

func (e Event) targets() int {
	n := 0
	if len(e.Recipients) > 0 {
		n++
	}
	if e.Room != "" {
		n++
	}
	if e.Broadcast {
		n++
	}
	return n
}

// Result summarises one Route call.
type Result struct {
	Pushed     int
	Persisted  int
	Suppressed int
}
