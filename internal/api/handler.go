// Package api exposes the REST surface. Writes that other users should see
// are handed to the hubs so REST and websocket clients observe the same
// events.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/auth"
	"github.com/christopherjohns/socialhub/internal/chat"
	"github.com/christopherjohns/socialhub/internal/friend"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/notification"
	"github.com/christopherjohns/socialhub/internal/post"
	"github.com/christopherjohns/socialhub/internal/ratelimit"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/user"
)

// MessagePublisher announces stored chat messages.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg *models.Message)
}

// PostPublisher announces comments and likes.
type PostPublisher interface {
	PublishComment(ctx context.Context, c *models.Comment)
	PublishPostLike(ctx context.Context, userID, postID int64, res models.LikeResult)
	PublishCommentLike(ctx context.Context, userID, commentID int64, res models.LikeResult)
}

// CountPusher refreshes unread counts on notification sessions.
type CountPusher interface {
	PushUnreadCount(ctx context.Context, userID int64)
}

type Router interface {
	Route(ctx context.Context, ev router.Event) router.Result
}

// Deps are the collaborators of Handler.
type Deps struct {
	Auth          *auth.Service
	Users         *user.Store
	Chat          *chat.Service
	Posts         *post.Service
	Friends       *friend.Service
	Notifications *notification.Store

	Messages MessagePublisher
	PostHub  PostPublisher
	Counts   CountPusher
	Router   Router

	// AuthLimiter throttles register and login per client IP. Nil disables it.
	AuthLimiter *ratelimit.Limiter
	Log         zerolog.Logger
}

// Handler wires HTTP routes to the domain services.
type Handler struct {
	Deps
	log zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Deps: d,
		log:  d.Log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes attaches all /api routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.rateLimit(), h.register)
	authGroup.POST("/login", h.rateLimit(), h.login)

	secured := api.Group("")
	secured.Use(h.Auth.Middleware())
	secured.GET("/auth/me", h.me)

	users := secured.Group("/users")
	users.GET("/search", h.searchUsers)
	users.PUT("/me", h.updateProfile)
	users.GET("/:id", h.getUser)

	chats := secured.Group("/chat")
	chats.GET("/conversations", h.listConversations)
	chats.POST("/conversations", h.createConversation)
	chats.GET("/conversations/:id", h.getConversation)
	chats.GET("/conversations/:id/messages", h.getMessages)
	chats.PUT("/conversations/:id/read", h.markConversationRead)
	chats.POST("/messages", h.sendMessage)

	posts := secured.Group("/posts")
	posts.POST("", h.createPost)
	posts.GET("/feed", h.feed)
	posts.GET("/user/:id", h.userPosts)
	posts.GET("/:id", h.getPost)
	posts.PUT("/:id", h.updatePost)
	posts.DELETE("/:id", h.deletePost)
	posts.POST("/:id/like", h.likePost)
	posts.GET("/:id/comments", h.listComments)
	posts.POST("/comments", h.addComment)
	posts.PUT("/comments/:id", h.updateComment)
	posts.DELETE("/comments/:id", h.deleteComment)
	posts.POST("/comments/:id/like", h.likeComment)

	friends := secured.Group("/friends")
	friends.GET("", h.listFriends)
	friends.POST("/requests", h.sendFriendRequest)
	friends.GET("/requests/pending", h.pendingRequests)
	friends.GET("/requests/sent", h.sentRequests)
	friends.POST("/requests/:id/accept", h.acceptFriendRequest)
	friends.POST("/requests/:id/reject", h.rejectFriendRequest)
	friends.DELETE("/requests/:id", h.cancelFriendRequest)
	friends.POST("/follow/:id", h.follow)
	friends.DELETE("/follow/:id", h.unfollow)
	friends.GET("/status/:id", h.relationshipStatus)
	friends.GET("/stats/:id", h.stats)
	friends.GET("/:id/followers", h.followers)
	friends.GET("/:id/following", h.following)
	friends.DELETE("/:id", h.removeFriend)

	notes := secured.Group("/notifications")
	notes.GET("", h.listNotifications)
	notes.GET("/unread-count", h.unreadCount)
	notes.PUT("/mark-all-read", h.markAllNotificationsRead)
	notes.PUT("/:id/read", h.markNotificationRead)
}

func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.AuthLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try again later"})
			return
		}
		c.Next()
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// their details withheld.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperr.Public(err)})
}

func currentUser(c *gin.Context) int64 {
	id, _ := auth.UserIDFromContext(c)
	return id
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// paging reads skip and take from the query string. Malformed values fall
// back to the defaults; services clamp take.
func paging(c *gin.Context, defaultTake int) (int, int) {
	skip, err := strconv.Atoi(c.Query("skip"))
	if err != nil || skip < 0 {
		skip = 0
	}
	take, err := strconv.Atoi(c.Query("take"))
	if err != nil || take <= 0 {
		take = defaultTake
	}
	return skip, take
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}
