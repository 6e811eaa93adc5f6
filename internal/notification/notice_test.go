package notification

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/christopherjohns/socialhub/internal/models"
)

func TestNoticeTitlesAndMessages(t *testing.T) {
	bob := models.UserSummary{ID: 2, Username: "bob", DisplayName: "Bobby"}
	carol := models.UserSummary{ID: 3, Username: "carol"}
	parent := int64(10)

	msg := &models.Message{ID: 7, ConversationID: 4, SenderUsername: "bob", SenderDisplayName: "Bobby", Content: "hey"}
	comment := &models.Comment{ID: 11, PostID: 5, Author: carol, Content: "nice"}
	reply := &models.Comment{ID: 12, PostID: 5, Author: carol, Content: "agreed", ParentCommentID: &parent}

	cases := []struct {
		notice  *Notice
		typ     models.NotificationType
		title   string
		message string
	}{
		{NewMessage(msg), models.NotifyNewMessage, "New Message", "Bobby: hey"},
		{PostComment(comment), models.NotifyPostComment, "New Comment", `carol commented on your post: "nice"`},
		{CommentReply(reply), models.NotifyCommentReply, "New Reply", `carol replied to your comment: "agreed"`},
		{PostLike(bob, 5), models.NotifyPostLike, "Post Liked", "Bobby liked your post!"},
		{CommentLike(carol, 11), models.NotifyCommentLike, "Comment Liked", "carol liked your comment!"},
		{FriendRequest(bob), models.NotifyFriendRequest, "Friend Request", "Bobby sent you a friend request!"},
		{FriendRequestAccepted(carol), models.NotifyFriendRequestAccepted, "Friend Request Accepted", "carol accepted your friend request!"},
		{NewFollower(bob), models.NotifyNewFollower, "New Follower", "Bobby started following you!"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.typ, tc.notice.Type)
		require.Equal(t, tc.title, tc.notice.Title)
		require.Equal(t, tc.message, tc.notice.Message)
	}

	require.Equal(t, int64(10), CommentReply(reply).Data["parent_comment_id"])
	require.Equal(t, int64(4), NewMessage(msg).Data["conversation_id"])
}
