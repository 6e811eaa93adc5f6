package notification

import (
	"fmt"

	"github.com/christopherjohns/socialhub/internal/models"
)

// Notice is the content of a notification before it is persisted.
type Notice struct {
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]any
}

func NewMessage(msg *models.Message) *Notice {
	return &Notice{
		Type:    models.NotifyNewMessage,
		Title:   "New Message",
		Message: fmt.Sprintf("%s: %s", msg.SenderName(), msg.Content),
		Data:    map[string]any{"conversation_id": msg.ConversationID, "message_id": msg.ID},
	}
}

func PostComment(c *models.Comment) *Notice {
	return &Notice{
		Type:    models.NotifyPostComment,
		Title:   "New Comment",
		Message: fmt.Sprintf("%s commented on your post: %q", c.Author.Name(), c.Content),
		Data:    map[string]any{"post_id": c.PostID, "comment_id": c.ID},
	}
}

func CommentReply(reply *models.Comment) *Notice {
	data := map[string]any{"post_id": reply.PostID, "comment_id": reply.ID}
	if reply.ParentCommentID != nil {
		data["parent_comment_id"] = *reply.ParentCommentID
	}
	return &Notice{
		Type:    models.NotifyCommentReply,
		Title:   "New Reply",
		Message: fmt.Sprintf("%s replied to your comment: %q", reply.Author.Name(), reply.Content),
		Data:    data,
	}
}

func PostLike(liker models.UserSummary, postID int64) *Notice {
	return &Notice{
		Type:    models.NotifyPostLike,
		Title:   "Post Liked",
		Message: fmt.Sprintf("%s liked your post!", liker.Name()),
		Data:    map[string]any{"post_id": postID, "liker_user_id": liker.ID},
	}
}

func CommentLike(liker models.UserSummary, commentID int64) *Notice {
	return &Notice{
		Type:    models.NotifyCommentLike,
		Title:   "Comment Liked",
		Message: fmt.Sprintf("%s liked your comment!", liker.Name()),
		Data:    map[string]any{"comment_id": commentID, "liker_user_id": liker.ID},
	}
}

func FriendRequest(requester models.UserSummary) *Notice {
	return &Notice{
		Type:    models.NotifyFriendRequest,
		Title:   "Friend Request",
		Message: fmt.Sprintf("%s sent you a friend request!", requester.Name()),
		Data:    map[string]any{"requester_id": requester.ID},
	}
}

func FriendRequestAccepted(accepter models.UserSummary) *Notice {
	return &Notice{
		Type:    models.NotifyFriendRequestAccepted,
		Title:   "Friend Request Accepted",
		Message: fmt.Sprintf("%s accepted your friend request!", accepter.Name()),
		Data:    map[string]any{"user_id": accepter.ID},
	}
}

func NewFollower(follower models.UserSummary) *Notice {
	return &Notice{
		Type:    models.NotifyNewFollower,
		Title:   "New Follower",
		Message: fmt.Sprintf("%s started following you!", follower.Name()),
		Data:    map[string]any{"follower_id": follower.ID},
	}
}
