package ws

import (
	"encoding/json"
	"fmt"
)

// Outbound envelope types. Inbound command types are defined by each channel.
const (
	TypeError = "Error"
	TypeAck   = "Ack"

	TypeUserOnline  = "UserOnline"
	TypeUserOffline = "UserOffline"

	TypeReceiveMessage         = "ReceiveMessage"
	TypeMessageSent            = "MessageSent"
	TypeMessageRead            = "MessageRead"
	TypeUserTyping             = "UserTyping"
	TypeUserJoinedConversation = "UserJoinedConversation"
	TypeUserLeftConversation   = "UserLeftConversation"
	TypeConversationHistory    = "ConversationHistory"

	TypeReceiveNotification      = "ReceiveNotification"
	TypeUnreadNotificationsCount = "UnreadNotificationsCount"

	TypeReceiveComment    = "ReceiveComment"
	TypeNewComment        = "NewComment"
	TypePostLikeUpdate    = "PostLikeUpdate"
	TypeCommentLikeUpdate = "CommentLikeUpdate"
	TypeUserTypingComment = "UserTypingComment"
)

// Envelope is the JSON frame exchanged over every hub connection. ID is
// chosen by the client on commands and echoed on the direct reply.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v. An empty payload decodes as {}.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

// ErrorPayload is sent to the caller when a command fails.
type ErrorPayload struct {
	Command string `json:"command"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckPayload confirms a command that has no other direct reply.
type AckPayload struct {
	Command string `json:"command"`
	ID      string `json:"id,omitempty"`
}
