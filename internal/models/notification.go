package models

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotifyNewMessage            NotificationType = "new_message"
	NotifyPostComment           NotificationType = "post_comment"
	NotifyCommentReply          NotificationType = "comment_reply"
	NotifyPostLike              NotificationType = "post_like"
	NotifyCommentLike           NotificationType = "comment_like"
	NotifyFriendRequest         NotificationType = "friend_request"
	NotifyFriendRequestAccepted NotificationType = "friend_request_accepted"
	NotifyNewFollower           NotificationType = "new_follower"
	NotifySystem                NotificationType = "system"
)

// Notification is the durable record of an event addressed to a user.
type Notification struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	ActorUserID *int64           `json:"actor_user_id,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
	Data        json.RawMessage  `json:"data,omitempty"`
}
