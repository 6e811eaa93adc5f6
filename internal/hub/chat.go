package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/chat"
	"github.com/christopherjohns/socialhub/internal/message"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/notification"
	"github.com/christopherjohns/socialhub/internal/room"
	"github.com/christopherjohns/socialhub/internal/router"
	"github.com/christopherjohns/socialhub/internal/ws"
)

// Chat commands.
const (
	CmdSendMessage       = "SendMessage"
	CmdJoinConversation  = "JoinConversation"
	CmdLeaveConversation = "LeaveConversation"
	CmdTypingIndicator   = "TypingIndicator"
	CmdMarkMessageAsRead = "MarkMessageAsRead"
)

const defaultHistorySize = 50

// Presence is told about chat connection transitions.
type Presence interface {
	Connected(ctx context.Context, s *ws.Session, first bool)
	Disconnected(ctx context.Context, s *ws.Session, last bool)
}

type sendMessage struct {
	ConversationID int64              `json:"conversation_id" validate:"required,gt=0"`
	Content        string             `json:"content"`
	Type           models.MessageType `json:"type"`
}

type conversationRef struct {
	ConversationID int64 `json:"conversation_id" validate:"required,gt=0"`
}

type typingIndicator struct {
	ConversationID int64 `json:"conversation_id" validate:"required,gt=0"`
	IsTyping       bool  `json:"is_typing"`
}

type messageRef struct {
	MessageID int64 `json:"message_id" validate:"required,gt=0"`
}

// RoomMember is the payload of UserJoinedConversation and UserLeftConversation.
type RoomMember struct {
	UserID         int64 `json:"user_id"`
	ConversationID int64 `json:"conversation_id"`
}

// Typing is the payload of UserTyping.
type Typing struct {
	UserID         int64 `json:"user_id"`
	ConversationID int64 `json:"conversation_id"`
	IsTyping       bool  `json:"is_typing"`
}

// MessageRead tells a sender that a participant read their message.
type MessageRead struct {
	MessageID      int64 `json:"message_id"`
	UserID         int64 `json:"user_id"`
	ConversationID int64 `json:"conversation_id"`
}

// History is the direct reply to JoinConversation.
type History struct {
	ConversationID int64             `json:"conversation_id"`
	Messages       []*models.Message `json:"messages"`
}

// Chat is the /hubs/chat channel.
type Chat struct {
	hub         *ws.Hub
	chat        *chat.Service
	cache       message.Cache
	router      Router
	presence    Presence
	historySize int
	log         zerolog.Logger
}

func NewChat(hub *ws.Hub, svc *chat.Service, cache message.Cache, r Router, p Presence,
	historySize int, log zerolog.Logger) *Chat {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Chat{
		hub:         hub,
		chat:        svc,
		cache:       cache,
		router:      r,
		presence:    p,
		historySize: historySize,
		log:         log.With().Str("component", "chat_hub").Logger(),
	}
}

func (c *Chat) OnConnect(ctx context.Context, s *ws.Session, first bool) error {
	c.presence.Connected(ctx, s, first)
	return nil
}

func (c *Chat) OnDisconnect(ctx context.Context, s *ws.Session, last bool) {
	c.presence.Disconnected(ctx, s, last)
}

func (c *Chat) Handle(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	switch env.Type {
	case CmdSendMessage:
		return c.sendMessage(ctx, s, env)
	case CmdJoinConversation:
		return c.joinConversation(ctx, s, env)
	case CmdLeaveConversation:
		return c.leaveConversation(ctx, s, env)
	case CmdTypingIndicator:
		return c.typing(ctx, s, env)
	case CmdMarkMessageAsRead:
		return c.markRead(ctx, s, env)
	default:
		return unknownCommand(env)
	}
}

func (c *Chat) sendMessage(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req sendMessage
	if err := decode(env, &req); err != nil {
		return err
	}
	msg, err := c.chat.SendMessage(ctx, s.UserID, req.ConversationID, req.Content, req.Type)
	if err != nil {
		return err
	}
	c.PublishMessage(ctx, msg)
	return c.hub.Reply(s, ws.TypeMessageSent, msg)
}

// PublishMessage caches a stored message and routes it to the other
// participants of its conversation with a new_message notice.
func (c *Chat) PublishMessage(ctx context.Context, msg *models.Message) {
	log := c.log.With().Int64("conversation_id", msg.ConversationID).Int64("message_id", msg.ID).Logger()
	if err := c.cache.Append(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("failed to cache message")
	}
	participants, err := c.chat.Participants(ctx, msg.ConversationID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load participants")
		return
	}
	c.router.Route(ctx, router.Event{
		Kind:       router.KindMessage,
		Actor:      msg.SenderID,
		Channel:    router.ChannelChat,
		Type:       ws.TypeReceiveMessage,
		Payload:    msg,
		Recipients: participants,
		Notice:     notification.NewMessage(msg),
	})
}

func (c *Chat) joinConversation(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req conversationRef
	if err := decode(env, &req); err != nil {
		return err
	}
	if err := c.chat.RequireParticipant(ctx, req.ConversationID, s.UserID); err != nil {
		return err
	}
	key := room.Conversation(req.ConversationID)
	c.hub.Join(key, s)
	c.router.Route(ctx, router.Event{
		Kind:    router.KindRoom,
		Actor:   s.UserID,
		Channel: router.ChannelChat,
		Type:    ws.TypeUserJoinedConversation,
		Payload: RoomMember{UserID: s.UserID, ConversationID: req.ConversationID},
		Room:    key,
	})

	history, err := c.history(ctx, s.UserID, req.ConversationID)
	if err != nil {
		return err
	}
	return c.hub.Reply(s, ws.TypeConversationHistory, History{
		ConversationID: req.ConversationID,
		Messages:       history,
	})
}

// history serves recent messages from the cache and falls back to the
// database when the cache has nothing for the conversation.
func (c *Chat) history(ctx context.Context, userID, convID int64) ([]*models.Message, error) {
	msgs, err := c.cache.Recent(ctx, convID, c.historySize)
	if err != nil {
		c.log.Warn().Err(err).Int64("conversation_id", convID).Msg("message cache unavailable")
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	return c.chat.GetMessages(ctx, userID, convID, 0, c.historySize)
}

func (c *Chat) leaveConversation(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req conversationRef
	if err := decode(env, &req); err != nil {
		return err
	}
	key := room.Conversation(req.ConversationID)
	if !c.hub.Leave(key, s) {
		return nil
	}
	c.router.Route(ctx, router.Event{
		Kind:    router.KindRoom,
		Actor:   s.UserID,
		Channel: router.ChannelChat,
		Type:    ws.TypeUserLeftConversation,
		Payload: RoomMember{UserID: s.UserID, ConversationID: req.ConversationID},
		Room:    key,
	})
	return nil
}

func (c *Chat) typing(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req typingIndicator
	if err := decode(env, &req); err != nil {
		return err
	}
	key := room.Conversation(req.ConversationID)
	if !c.hub.InRoom(key, s) {
		return apperr.Forbidden("join the conversation before sending typing indicators")
	}
	c.router.Route(ctx, router.Event{
		Kind:          router.KindTyping,
		Actor:         s.UserID,
		Channel:       router.ChannelChat,
		Type:          ws.TypeUserTyping,
		Payload:       Typing{UserID: s.UserID, ConversationID: req.ConversationID, IsTyping: req.IsTyping},
		Room:          key,
		ExceptSession: s.ID,
	})
	return nil
}

func (c *Chat) markRead(ctx context.Context, s *ws.Session, env ws.Envelope) error {
	var req messageRef
	if err := decode(env, &req); err != nil {
		return err
	}
	msg, err := c.chat.MarkMessageAsRead(ctx, s.UserID, req.MessageID)
	if err != nil {
		return err
	}
	c.router.Route(ctx, router.Event{
		Kind:    router.KindMessageRead,
		Actor:   s.UserID,
		Channel: router.ChannelChat,
		Type:    ws.TypeMessageRead,
		Payload: MessageRead{
			MessageID:      msg.ID,
			UserID:         s.UserID,
			ConversationID: msg.ConversationID,
		},
		Recipients: []int64{msg.SenderID},
	})
	return nil
}
