package models

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

type Conversation struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name,omitempty"`
	IsGroup       bool          `json:"is_group"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	Participants  []UserSummary `json:"participants"`
	LastMessage   *Message      `json:"last_message,omitempty"`
	UnreadCount   int           `json:"unread_count"`
}

type ConversationParticipant struct {
	ConversationID int64      `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

type Message struct {
	ID                int64       `json:"id"`
	ConversationID    int64       `json:"conversation_id"`
	SenderID          int64       `json:"sender_id"`
	SenderUsername    string      `json:"sender_username"`
	SenderDisplayName string      `json:"sender_display_name,omitempty"`
	Content           string      `json:"content"`
	Type              MessageType `json:"type"`
	SentAt            time.Time   `json:"sent_at"`
	IsEdited          bool        `json:"is_edited"`
	IsDeleted         bool        `json:"is_deleted"`
}

// SenderName is the sender's display name, falling back to the username.
func (m *Message) SenderName() string {
	if m.SenderDisplayName != "" {
		return m.SenderDisplayName
	}
	return m.SenderUsername
}
