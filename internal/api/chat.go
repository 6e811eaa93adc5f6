package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/chat"
	"github.com/christopherjohns/socialhub/internal/models"
)

type createConversationRequest struct {
	ParticipantIDs []int64 `json:"participant_ids"`
	Name           string  `json:"name"`
	IsGroup        bool    `json:"is_group"`
}

type sendMessageRequest struct {
	ConversationID int64              `json:"conversation_id"`
	Content        string             `json:"content"`
	Type           models.MessageType `json:"type"`
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.Chat.ListConversations(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) createConversation(c *gin.Context) {
	var req createConversationRequest
	if !bind(c, &req) {
		return
	}
	conv, err := h.Chat.CreateConversation(c.Request.Context(), currentUser(c), req.ParticipantIDs, req.Name, req.IsGroup)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) getConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	conv, err := h.Chat.GetConversation(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) getMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	skip, take := paging(c, chat.DefaultPageSize)
	msgs, err := h.Chat.GetMessages(c.Request.Context(), currentUser(c), id, skip, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) markConversationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Chat.MarkConversationRead(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// sendMessage stores the message and routes it exactly as the hub's
// SendMessage command does.
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bind(c, &req) {
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), currentUser(c), req.ConversationID, req.Content, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Messages.PublishMessage(c.Request.Context(), msg)
	c.JSON(http.StatusCreated, msg)
}
