package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/notification"
)

func (h *Handler) listNotifications(c *gin.Context) {
	skip, take := paging(c, notification.DefaultTake)
	list, err := h.Notifications.List(c.Request.Context(), currentUser(c), skip, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) unreadCount(c *gin.Context) {
	count, err := h.Notifications.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	if err := h.Notifications.MarkAsRead(c.Request.Context(), userID, id); err != nil {
		h.fail(c, err)
		return
	}
	h.Counts.PushUnreadCount(c.Request.Context(), userID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	userID := currentUser(c)
	if err := h.Notifications.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return
	}
	h.Counts.PushUnreadCount(c.Request.Context(), userID)
	c.Status(http.StatusNoContent)
}
