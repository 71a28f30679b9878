// Package fixtures provides the static demo dataset.
package fixtures

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/source"
)

// Identity of the demo account that owns the dataset.
const (
	DemoUserID   = "usr_abcdef1234567890"
	DemoUsername = "demouser"
)

var users = map[string]chat.User{
	DemoUserID:     {ID: DemoUserID, Username: DemoUsername, DisplayName: "Demo User", Avatar: "https://i.pravatar.cc/150?u=demouser", Presence: chat.Online},
	"user-alice":   {ID: "user-alice", Username: "alicew", DisplayName: "Alice Wonderland", Avatar: "https://i.pravatar.cc/150?u=alice", Presence: chat.Online},
	"user-bob":     {ID: "user-bob", Username: "bobthebuilder", DisplayName: "Bob Builder", Avatar: "https://i.pravatar.cc/150?u=bob", Presence: chat.Offline},
	"user-charlie": {ID: "user-charlie", Username: "charliec", DisplayName: "Charlie Chaplin", Avatar: "https://i.pravatar.cc/150?u=charlie", Presence: chat.Away},
}

// DemoUser returns the local identity the fixtures are written for.
func DemoUser() chat.User {
	return users[DemoUserID]
}

// Users returns the demo user directory ordered by id, demo user included.
func Users() []chat.User {
	out := make([]chat.User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b chat.User) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Source is an in-memory DataSource seeded with the demo dataset. Writes
// through its Sink methods are visible to later reads, so it also backs
// conversations created during a session.
type Source struct {
	mu       sync.RWMutex
	convs    []chat.Conversation
	messages map[string][]chat.Message
}

var (
	_ source.DataSource = (*Source)(nil)
	_ source.Sink       = (*Source)(nil)
)

// New builds the demo dataset with timestamps relative to now.
func New(now time.Time) *Source {
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	day := 24 * time.Hour

	convs := []chat.Conversation{
		{
			ID:           "chat-1-private",
			Name:         "Alice Wonderland",
			Kind:         chat.Private,
			Avatar:       users["user-alice"].Avatar,
			Participants: members(DemoUserID, "user-alice"),
			LastMessage: &chat.LastMessage{
				Content:   "Oh cool! Let me know if you need help testing.",
				SenderID:  "user-alice",
				Timestamp: ago(5 * time.Minute),
				State:     chat.Read,
			},
			UnreadCount: 1,
			CreatedAt:   ago(2 * day),
			UpdatedAt:   ago(5 * time.Minute),
		},
		{
			ID:           "chat-2-group",
			Name:         "Project Team",
			Kind:         chat.Group,
			Avatar:       "https://i.pravatar.cc/150?u=group-project-team",
			Participants: members(DemoUserID, "user-bob", "user-charlie"),
			LastMessage: &chat.LastMessage{
				Content:   "Great, see you then.",
				SenderID:  "user-bob",
				Timestamp: ago(10 * time.Minute),
				State:     chat.Delivered,
			},
			Archived:  true,
			CreatedAt: ago(5 * day),
			UpdatedAt: ago(10 * time.Minute),
		},
		{
			ID:           "chat-3-private-no-last-message",
			Name:         "Bob Builder",
			Kind:         chat.Private,
			Avatar:       users["user-bob"].Avatar,
			Participants: members(DemoUserID, "user-bob"),
			CreatedAt:    ago(day),
			UpdatedAt:    ago(day),
		},
	}

	messages := map[string][]chat.Message{
		"chat-1-private": {
			text("msg-1-1", "chat-1-private", "user-alice", "Hey there! How's it going?", ago(15*time.Minute), chat.Read),
			text("msg-1-2", "chat-1-private", DemoUserID, "Pretty good! Just working on this chat app.", ago(10*time.Minute), chat.Read),
			text("msg-1-3", "chat-1-private", "user-alice", "Oh cool! Let me know if you need help testing.", ago(5*time.Minute), chat.Read),
		},
		"chat-2-group": {
			text("msg-2-1", "chat-2-group", "user-bob", "Meeting at 3 PM today?", ago(30*time.Minute), chat.Read),
			text("msg-2-2", "chat-2-group", "user-charlie", "Works for me!", ago(25*time.Minute), chat.Read),
			text("msg-2-3", "chat-2-group", DemoUserID, "I can make it.", ago(20*time.Minute), chat.Delivered),
			text("msg-2-4", "chat-2-group", "user-bob", "Great, see you then.", ago(10*time.Minute), chat.Delivered),
		},
		"chat-3-private-no-last-message": {},
	}

	return &Source{convs: convs, messages: messages}
}

// NewWith builds a source over caller-supplied data, mostly for tests.
func NewWith(convs []chat.Conversation, messages map[string][]chat.Message) *Source {
	if messages == nil {
		messages = map[string][]chat.Message{}
	}
	return &Source{convs: convs, messages: messages}
}

func (s *Source) ListConversations(_ context.Context) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *Source) Messages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := slices.Clone(s.messages[conversationID])
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

func (s *Source) FindConversation(_ context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convs {
		if c.ID == conversationID {
			return c.Clone(), nil
		}
	}
	return chat.Conversation{}, source.ErrNotFound
}

// UpsertConversation replaces the conversation with the same id or adds c
// at the front.
func (s *Source) UpsertConversation(_ context.Context, c *chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.convs, func(e chat.Conversation) bool { return e.ID == c.ID }); i >= 0 {
		s.convs[i] = c.Clone()
		return nil
	}
	s.convs = slices.Insert(s.convs, 0, c.Clone())
	return nil
}

// UpsertMessage updates the message with the same id in place or appends m.
// The conversation must exist.
func (s *Source) UpsertMessage(_ context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.ContainsFunc(s.convs, func(c chat.Conversation) bool { return c.ID == m.ConversationID }) {
		return fmt.Errorf("upsert message %q: %w", m.ID, source.ErrNotFound)
	}
	msgs := s.messages[m.ConversationID]
	if i := slices.IndexFunc(msgs, func(e chat.Message) bool { return e.ID == m.ID }); i >= 0 {
		msgs[i] = *m
		return nil
	}
	s.messages[m.ConversationID] = append(msgs, *m)
	return nil
}

func members(ids ...string) []chat.Participant {
	out := make([]chat.Participant, 0, len(ids))
	for _, id := range ids {
		u := users[id]
		out = append(out, chat.Participant{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Presence: u.Presence})
	}
	return out
}

func text(id, convID, senderID, content string, ts time.Time, state chat.DeliveryState) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     users[senderID].DisplayName,
		Content:        content,
		Kind:           chat.Text,
		State:          state,
		Timestamp:      ts,
	}
}
