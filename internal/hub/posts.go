package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/notification"
	"github.com/christopherjohns/socialhub/internal/post"
	"github.com/christopherjohns/socialhub/internal/room"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/ws"
)

// Post commands.
const (
	CmdJoinPost          = "JoinPost"
	CmdLeavePost         = "LeavePost"
	CmdSendComment       = "SendComment"
	CmdLikePost          = "LikePost"
	CmdLikeComment       = "LikeComment"
	CmdUserTypingComment = "UserTypingComment"
)

// Users resolves the public profile attached to like notices.
type Users interface {
	Summary(ctx context.Context, id int64) (models.UserSummary, error)
}

type postRef struct {
	PostID int64 `json:"post_id" validate:"required,gt=0"`
}

type commentRef struct {
	CommentID int64 `json:"comment_id" validate:"required,gt=0"`
}

type sendComment struct {
	PostID          int64  `json:"post_id" validate:"required,gt=0"`
	ParentCommentID *int64 `json:"parent_comment_id" validate:"omitempty,gt=0"`
	Content         string `json:"content"`
}

type typingComment struct {
	PostID   int64 `json:"post_id" validate:"required,gt=0"`
	IsTyping bool  `json:"is_typing"`
}

// CommentCount is the payload of NewComment.
type CommentCount struct {
	PostID        int64 `json:"post_id"`
	CommentsCount int   `json:"comments_count"`
}

// PostLikeUpdate carries a post's like state after a toggle.
type PostLikeUpdate struct {
	PostID     int64 `json:"post_id"`
	LikesCount int   `json:"likes_count"`
	IsLiked    bool  `json:"is_liked"`
	UserID     int64 `json:"user_id"`
}

// CommentLikeUpdate is PostLikeUpdate for comments.
type CommentLikeUpdate struct {
	CommentID  int64 `json:"comment_id"`
	PostID     int64 `json:"post_id"`
	LikesCount int   `json:"likes_count"`
	IsLiked    bool  `json:"is_liked"`
	UserID     int64 `json:"user_id"`
}

// CommentTyping is the payload of UserTypingComment.
type CommentTyping struct {
	UserID   int64 `json:"user_id"`
	PostID   int64 `json:"post_id"`
	IsTyping bool  `json:"is_typing"`
}

// Posts is the /hubs/posts channel.
type Posts struct {
	hub    *ws.Hub
	posts  *post.Service
	users  Users
	router Router
	log    zerolog.Logger
}

func NewPosts(hub *ws.Hub, svc *post.Service, users Users, r Router, log zerolog.Logger) *Posts {
	return &Posts{
		hub:    hub,
		posts:  svc,
		users:  users,
		router: r,
		log:    log.With().Str("component", "post_hub").Logger(),
	}
}

func (p *Posts) OnConnect(context.Context, *ws.Session, bool) error { return nil }

func (p *Posts) OnDisconnect(context.Context, *ws.Session, bool) {}

func (p *Posts) Handle(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	switch env.Type {
	case CmdJoinPost:
		var req postRef
		if err := decode(env, &req); err != nil {
			return err
		}
		if _, err := p.posts.GetPost(ctx, s.UserID, req.PostID); err != nil {
			return err
		}
		p.hub.Join(room.Post(req.PostID), s)
		return nil
	case CmdLeavePost:
		var req postRef
		if err := decode(env, &req); err != nil {
			return err
		}
		p.hub.Leave(room.Post(req.PostID), s)
		return nil
	case CmdSendComment:
		return p.sendComment(ctx, s, env)
	case CmdLikePost:
		var req postRef
		if err := decode(env, &req); err != nil {
			return err
		}
		res, err := p.posts.TogglePostLike(ctx, s.UserID, req.PostID)
		if err != nil {
			return err
		}
		p.PublishPostLike(ctx, s.UserID, req.PostID, res)
		return nil
	case CmdLikeComment:
		var req commentRef
		if err := decode(env, &req); err != nil {
			return err
		}
		res, err := p.posts.ToggleCommentLike(ctx, s.UserID, req.CommentID)
		if err != nil {
			return err
		}
		p.PublishCommentLike(ctx, s.UserID, req.CommentID, res)
		return nil
	case CmdUserTypingComment:
		return p.typing(ctx, s, env)
	default:
		return unknownCommand(env)
	}
}

func (p *Posts) sendComment(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req sendComment
	if err := decode(env, &req); err != nil {
		return err
	}
	c, err := p.posts.AddComment(ctx, s.UserID, req.PostID, req.ParentCommentID, req.Content)
	if err != nil {
		return err
	}
	p.PublishComment(ctx, c)
	return nil
}

// PublishComment announces a stored comment: the full comment to the post
// room, the new count to every post session, and notices to the post owner
// and, for replies, the parent comment's author.
func (p *Posts) PublishComment(ctx context.Context, c *models.Comment) {
	log := p.log.With().Int64("post_id", c.PostID).Int64("comment_id", c.ID).Logger()
	p.router.Route(ctx, router.Event{
		Kind:    router.KindComment,
		Actor:   c.UserID,
		Channel: router.ChannelPosts,
		Type:    ws.TypeReceiveComment,
		Payload: c,
		Room:    room.Post(c.PostID),
	})

	target, err := p.posts.GetPost(ctx, c.UserID, c.PostID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load commented post")
		return
	}
	p.router.Route(ctx, router.Event{
		Kind:      router.KindComment,
		Actor:     c.UserID,
		Channel:   router.ChannelPosts,
		Type:      ws.TypeNewComment,
		Payload:   CommentCount{PostID: target.ID, CommentsCount: target.CommentsCount},
		Broadcast: true,
	})
	p.router.Route(ctx, router.Event{
		Kind:       router.KindComment,
		Actor:      c.UserID,
		Recipients: []int64{target.UserID},
		Notice:     notification.PostComment(c),
	})

	if c.ParentCommentID == nil {
		return
	}
	parent, err := p.posts.GetComment(ctx, c.UserID, *c.ParentCommentID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load parent comment")
		return
	}
	p.router.Route(ctx, router.Event{
		Kind:       router.KindComment,
		Actor:      c.UserID,
		Recipients: []int64{parent.UserID},
		Notice:     notification.CommentReply(c),
	})
}

// PublishPostLike sends the new like state to the post room and notifies
// the owner when the post was liked.
func (p *Posts) PublishPostLike(ctx context.Context, userID, postID int64, res models.LikeResult) {
	p.router.Route(ctx, router.Event{
		Kind:    router.KindLike,
		Actor:   userID,
		Channel: router.ChannelPosts,
		Type:    ws.TypePostLikeUpdate,
		Payload: PostLikeUpdate{PostID: postID, LikesCount: res.Count, IsLiked: res.Liked, UserID: userID},
		Room:    room.Post(postID),
	})
	if !res.Liked {
		return
	}
	target, err := p.posts.GetPost(ctx, userID, postID)
	if err != nil {
		p.log.Error().Err(err).Int64("post_id", postID).Msg("failed to load liked post")
		return
	}
	if target.UserID == userID {
		return
	}
	p.notifyLike(ctx, userID, target.UserID, func(liker models.UserSummary) *notification.Notice {
		return notification.PostLike(liker, postID)
	})
}

// PublishCommentLike is PublishPostLike for comments.
func (p *Posts) PublishCommentLike(ctx context.Context, userID, commentID int64, res models.LikeResult) {
	c, err := p.posts.GetComment(ctx, userID, commentID)
	if err != nil {
		p.log.Error().Err(err).Int64("comment_id", commentID).Msg("failed to load liked comment")
		return
	}
	p.router.Route(ctx, router.Event{
		Kind:    router.KindLike,
		Actor:   userID,
		Channel: router.ChannelPosts,
		Type:    ws.TypeCommentLikeUpdate,
		Payload: CommentLikeUpdate{
			CommentID:  commentID,
			PostID:     c.PostID,
			LikesCount: res.Count,
			IsLiked:    res.Liked,
			UserID:     userID,
		},
		Room: room.Post(c.PostID),
	})
	if !res.Liked || c.UserID == userID {
		return
	}
	p.notifyLike(ctx, userID, c.UserID, func(liker models.UserSummary) *notification.Notice {
		return notification.CommentLike(liker, commentID)
	})
}

func (p *Posts) notifyLike(ctx context.Context, likerID, ownerID int64, notice func(models.UserSummary) *notification.Notice) {
	liker, err := p.users.Summary(ctx, likerID)
	if err != nil {
		p.log.Error().Err(err).Int64("user_id", likerID).Msg("failed to load liker")
		return
	}
	p.router.Route(ctx, router.Event{
		Kind:       router.KindLike,
		Actor:      likerID,
		Recipients: []int64{ownerID},
		Notice:     notice(liker),
	})
}

func (p *Posts) typing(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req typingComment
	if err := decode(env, &req); err != nil {
		return err
	}
	key := room.Post(req.PostID)
	if !p.hub.InRoom(key, s) {
		return apperr.Forbidden("join the post before sending typing indicators")
	}
	p.router.Route(ctx, router.Event{
		Kind:          router.KindTyping,
		Actor:         s.UserID,
		Channel:       router.ChannelPosts,
		Type:          ws.TypeUserTypingComment,
		Payload:       CommentTyping{UserID: s.UserID, PostID: req.PostID, IsTyping: req.IsTyping},
		Room:          key,
		ExceptSession: s.ID,
	})
	return nil
}
