// Package realtime defines the contract between the client core and a
// bidirectional event transport. The core only depends on Channel; concrete
// transports live in subpackages.
package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/matheus3301/chatline/internal/chat"
)

// Event names understood by the client core.
const (
	EventJoin        = "join_chat"
	EventLeave       = "leave_chat"
	EventNewMessage  = "new_message"
	EventSendMessage = "send_message"
	EventTyping      = "typing"

	// Conversation list events, consumed for the lifetime of the client.
	EventNewChat       = "new_chat"
	EventChatUpdated   = "chat_updated"
	EventMessageStatus = "message_status"
)

// ErrDisconnected is returned by Emit when the channel is not connected.
var ErrDisconnected = errors.New("realtime channel disconnected")

// Handler receives the raw JSON payload of an inbound event.
type Handler func(data json.RawMessage)

// Channel is an external bidirectional event transport.
type Channel interface {
	// Connected reports whether emissions can currently be delivered.
	Connected() bool
	// Emit sends a named event upstream. payload is JSON-encoded.
	Emit(ctx context.Context, event string, payload any) error
	// On registers h for inbound events with the given name.
	// The returned function removes the registration and is idempotent.
	On(event string, h Handler) (unsubscribe func())
}

// SendMessagePayload is emitted with EventSendMessage.
type SendMessagePayload struct {
	ChatID     string             `json:"chatId"`
	SenderID   string             `json:"senderId"`
	SenderName string             `json:"senderName"`
	Content    string             `json:"content"`
	Type       chat.PayloadKind   `json:"type"`
	Status     chat.DeliveryState `json:"status"`
	URL        string             `json:"url,omitempty"`
	FileName   string             `json:"fileName,omitempty"`
	FileSize   int64              `json:"fileSize,omitempty"`
	Latitude   float64            `json:"latitude,omitempty"`
	Longitude  float64            `json:"longitude,omitempty"`
}

// NewSendMessagePayload builds the upstream form of a locally created message.
func NewSendMessagePayload(m *chat.Message) SendMessagePayload {
	return SendMessagePayload{
		ChatID:     m.ConversationID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Type:       m.Kind,
		Status:     m.State,
		URL:        m.URL,
		FileName:   m.FileName,
		FileSize:   m.FileSize,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
	}
}

// TypingPayload is carried by EventTyping in both directions.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomPayload is carried by EventJoin and EventLeave.
type RoomPayload struct {
	ChatID string `json:"chatId"`
}

// StatusPayload is carried by EventMessageStatus when a message is
// acknowledged further.
type StatusPayload struct {
	ChatID    string             `json:"chatId"`
	MessageID string             `json:"messageId"`
	Status    chat.DeliveryState `json:"status"`
}
