package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessage is embedded in StudyGroup.Chat. Sender holds the display name
// resolved when the message was sent; it is never re-resolved.
type ChatMessage struct {
	SenderID  primitive.ObjectID `bson:"sender_id"`
	Sender    string             `bson:"sender"`
	Content   string             `bson:"content"`
	Timestamp time.Time          `bson:"timestamp"`
}

// ChatMessageView is the JSON shape of a persisted message.
type ChatMessageView struct {
	SenderID  string    `json:"sender_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (m ChatMessage) View() ChatMessageView {
	return ChatMessageView{
		SenderID:  m.SenderID.Hex(),
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

// Chat wire message types.
const (
	ChatEventMessage = "message"
	ChatEventError   = "error"
)

// ChatInbound is one frame sent by a client.
type ChatInbound struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// ChatOutbound is a broadcast message event. Sender and SenderName carry the
// same display name; older clients read one, newer the other.
type ChatOutbound struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// ChatError is unicast to the sending connection only.
type ChatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewChatError(msg string) ChatError {
	return ChatError{Type: ChatEventError, Message: msg}
}
