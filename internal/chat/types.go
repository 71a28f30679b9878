package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the conversation type.
type Kind string

const (
	Private Kind = "private"
	Group   Kind = "group"
	Channel Kind = "channel"
)

// Presence is a participant's online state.
type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
	Away    Presence = "away"
)

// PayloadKind determines which optional message fields are meaningful.
type PayloadKind string

const (
	Text     PayloadKind = "text"
	Image    PayloadKind = "image"
	Video    PayloadKind = "video"
	Audio    PayloadKind = "audio"
	File     PayloadKind = "file"
	Location PayloadKind = "location"
)

// HasURL reports whether messages of this kind carry a media URL.
func (k PayloadKind) HasURL() bool {
	switch k {
	case Image, Video, Audio, File:
		return true
	}
	return false
}

// DeliveryState is the acknowledgment status of a message.
// It only moves forward: sent -> delivered -> read.
type DeliveryState string

const (
	Sent      DeliveryState = "sent"
	Delivered DeliveryState = "delivered"
	Read      DeliveryState = "read"
)

// Rank orders delivery states; unknown states rank 0.
func (s DeliveryState) Rank() int {
	switch s {
	case Sent:
		return 1
	case Delivered:
		return 2
	case Read:
		return 3
	}
	return 0
}

// CanAdvance reports whether moving from s to next keeps the order monotonic.
func (s DeliveryState) CanAdvance(next DeliveryState) bool {
	return next.Rank() >= s.Rank() && next.Rank() > 0
}

// Participant is a member summary of a conversation.
type Participant struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Avatar   string   `json:"avatar,omitempty"`
	Presence Presence `json:"status"`
}

// LastMessage is the denormalized summary used for list rendering.
type LastMessage struct {
	Content   string        `json:"content"`
	SenderID  string        `json:"senderId"`
	Timestamp time.Time     `json:"timestamp"`
	State     DeliveryState `json:"status"`
}

// Conversation is one chat thread.
type Conversation struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         Kind          `json:"type"`
	Avatar       string        `json:"avatar,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *LastMessage  `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	Archived     bool          `json:"isArchived"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Validate checks the structural invariants of a conversation.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation id is empty")
	}
	switch c.Kind {
	case Private:
		if len(c.Participants) != 2 {
			return fmt.Errorf("private conversation %q has %d participants, want 2", c.ID, len(c.Participants))
		}
	case Group, Channel:
		if len(c.Participants) < 1 {
			return fmt.Errorf("%s conversation %q has no participants", c.Kind, c.ID)
		}
	default:
		return fmt.Errorf("conversation %q has unknown kind %q", c.ID, c.Kind)
	}
	if c.UnreadCount < 0 {
		return fmt.Errorf("conversation %q has negative unread count", c.ID)
	}
	if c.UpdatedAt.Before(c.CreatedAt) {
		return fmt.Errorf("conversation %q updated before it was created", c.ID)
	}
	return nil
}

// Participant returns the participant with the given id.
func (c *Conversation) Participant(id string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// OtherParticipants returns everyone except userID, in conversation order.
func (c *Conversation) OtherParticipants(userID string) []Participant {
	var others []Participant
	for _, p := range c.Participants {
		if p.ID != userID {
			others = append(others, p)
		}
	}
	return others
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	if c.Participants != nil {
		c.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		c.LastMessage = &lm
	}
	return c
}

// Reaction is an emoji attached to a message by a user.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is one unit of communication within a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"chatId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	Kind           PayloadKind   `json:"type"`
	URL            string        `json:"url,omitempty"`
	FileName       string        `json:"fileName,omitempty"`
	FileSize       int64         `json:"fileSize,omitempty"`
	Latitude       float64       `json:"latitude,omitempty"`
	Longitude      float64       `json:"longitude,omitempty"`
	State          DeliveryState `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	EditedAt       *time.Time    `json:"editedAt,omitempty"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
}

// Summary builds the list-rendering cache entry for m.
func (m *Message) Summary() LastMessage {
	return LastMessage{
		Content:   m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
		State:     m.State,
	}
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return "chat-" + uuid.NewString()
}

// User is the local identity.
type User struct {
	ID          string   `json:"id" toml:"id"`
	Username    string   `json:"username" toml:"username"`
	DisplayName string   `json:"displayName" toml:"display_name"`
	Avatar      string   `json:"avatar,omitempty" toml:"avatar"`
	Presence    Presence `json:"status" toml:"presence"`
}
