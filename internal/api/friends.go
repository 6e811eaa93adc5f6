package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/notification"
	"github.com/christopherjohns/socialhub/internal/router"
)

type friendRequestBody struct {
	AddresseeID int64 `json:"addressee_id"`
}

// notify routes a notice-only event; nothing is pushed on a content channel.
func (h *Handler) notify(ctx context.Context, actor, recipient int64, notice *notification.Notice) {
	h.Router.Route(ctx, router.Event{
		Kind:       router.KindFriend,
		Actor:      actor,
		Recipients: []int64{recipient},
		Notice:     notice,
	})
}

func (h *Handler) sendFriendRequest(c *gin.Context) {
	var req friendRequestBody
	if !bind(c, &req) {
		return
	}
	fr, err := h.Friends.SendRequest(c.Request.Context(), currentUser(c), req.AddresseeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.notify(c.Request.Context(), fr.Requester.ID, fr.Addressee.ID, notification.FriendRequest(fr.Requester))
	c.JSON(http.StatusCreated, fr)
}

func (h *Handler) acceptFriendRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fr, err := h.Friends.Accept(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.notify(c.Request.Context(), fr.Addressee.ID, fr.Requester.ID, notification.FriendRequestAccepted(fr.Addressee))
	c.JSON(http.StatusOK, fr)
}

func (h *Handler) rejectFriendRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Friends.Reject(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) cancelFriendRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Friends.Cancel(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pendingRequests(c *gin.Context) {
	list, err := h.Friends.Pending(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) sentRequests(c *gin.Context) {
	list, err := h.Friends.Sent(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) listFriends(c *gin.Context) {
	list, err := h.Friends.Friends(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) removeFriend(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Friends.RemoveFriend(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) follow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	userID := currentUser(c)
	created, err := h.Friends.Follow(ctx, userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if created {
		follower, err := h.Users.Summary(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load follower")
		} else {
			h.notify(ctx, userID, id, notification.NewFollower(follower))
		}
	}
	c.JSON(http.StatusOK, gin.H{"following": true, "created": created})
}

func (h *Handler) unfollow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Friends.Unfollow(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) followers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.Friends.Followers(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) following(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.Friends.Following(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) relationshipStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	status, err := h.Friends.Status(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) stats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stats, err := h.Friends.Stats(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
