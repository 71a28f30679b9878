package store

import (
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
)

// Event kinds published after each mutation.
const (
	EventConversationsReplaced = "store.conversations_replaced"
	EventConversationAdded     = "store.conversation_added"
	EventConversationUpdated   = "store.conversation_updated"
	EventMessagesSet           = "store.messages_set"
	EventMessageAppended       = "store.message_appended"
	EventDeliveryStateChanged  = "store.delivery_state_changed"
	EventActiveChanged         = "store.active_changed"
)

// DeliveryStateChange is the payload of EventDeliveryStateChanged.
type DeliveryStateChange struct {
	MessageID string
	State     chat.DeliveryState
}

// Store is the in-memory source of truth for conversations and their
// messages during a client session. Lookups by id that miss are silent
// no-ops; mutators report whether they found their target.
//
// Reads return copies, so callers never alias the store's slices.
type Store struct {
	mu       sync.RWMutex
	convs    []chat.Conversation
	messages map[string][]chat.Message
	active   *chat.Conversation
	bus      *bus.Bus
	now      func() time.Time
}

// New creates an empty store. b may be nil.
func New(b *bus.Bus) *Store {
	return &Store{
		messages: make(map[string][]chat.Message),
		bus:      b,
		now:      time.Now,
	}
}

// ReplaceConversations replaces the whole conversation collection.
// Message lists are left untouched.
func (s *Store) ReplaceConversations(list []chat.Conversation) {
	s.mu.Lock()
	s.convs = cloneConversations(list)
	s.mu.Unlock()
	s.bus.Emit(EventConversationsReplaced, "", len(list))
}

// AddConversation inserts c at the front of the collection. An existing
// entry with the same id is removed first, so ids stay unique.
func (s *Store) AddConversation(c chat.Conversation) {
	s.mu.Lock()
	s.convs = slices.DeleteFunc(s.convs, func(existing chat.Conversation) bool {
		return existing.ID == c.ID
	})
	s.convs = slices.Insert(s.convs, 0, c.Clone())
	s.mu.Unlock()
	s.bus.Emit(EventConversationAdded, c.ID, nil)
}

// SetMessages replaces the message list for a conversation id.
// The id does not have to belong to a known conversation.
func (s *Store) SetMessages(conversationID string, msgs []chat.Message) {
	s.mu.Lock()
	s.messages[conversationID] = slices.Clone(msgs)
	if s.messages[conversationID] == nil {
		s.messages[conversationID] = []chat.Message{}
	}
	s.mu.Unlock()
	s.bus.Emit(EventMessagesSet, conversationID, len(msgs))
}

// AppendMessage appends m to the conversation's list, creating it if absent.
// No de-duplication by message id is done.
func (s *Store) AppendMessage(conversationID string, m chat.Message) {
	s.mu.Lock()
	s.messages[conversationID] = append(s.messages[conversationID], m)
	s.mu.Unlock()
	s.bus.Emit(EventMessageAppended, conversationID, m)
}

// SetDeliveryState replaces the delivery state of every message in the
// conversation with the given id. Monotonicity is the caller's
// responsibility.
func (s *Store) SetDeliveryState(conversationID, messageID string, state chat.DeliveryState) bool {
	s.mu.Lock()
	hit := false
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].State = state
			hit = true
		}
	}
	s.mu.Unlock()
	if !hit {
		return false
	}
	s.bus.Emit(EventDeliveryStateChanged, conversationID, DeliveryStateChange{MessageID: messageID, State: state})
	return true
}

// ReplaceConversation swaps every entry with c's id for c, keeping its
// position. Unlike the other mutators it stores c as given, timestamps
// included.
func (s *Store) ReplaceConversation(c chat.Conversation) bool {
	s.mu.Lock()
	hit := false
	for i := range s.convs {
		if s.convs[i].ID == c.ID {
			s.convs[i] = c.Clone()
			hit = true
		}
	}
	if hit && s.active != nil && s.active.ID == c.ID {
		cp := c.Clone()
		s.active = &cp
	}
	s.mu.Unlock()
	if !hit {
		return false
	}
	s.bus.Emit(EventConversationUpdated, c.ID, nil)
	return true
}

// SetActiveConversation records which conversation is open. It does not
// touch unread counters or message lists. nil clears it.
func (s *Store) SetActiveConversation(c *chat.Conversation) {
	var id string
	s.mu.Lock()
	if c == nil {
		s.active = nil
	} else {
		cp := c.Clone()
		s.active = &cp
		id = c.ID
	}
	s.mu.Unlock()
	s.bus.Emit(EventActiveChanged, id, nil)
}

// ToggleArchived flips the archived flag of a conversation.
func (s *Store) ToggleArchived(conversationID string) bool {
	return s.update(conversationID, func(c *chat.Conversation) {
		c.Archived = !c.Archived
	})
}

// IncrementUnread bumps the unread counter of a conversation.
func (s *Store) IncrementUnread(conversationID string) bool {
	return s.update(conversationID, func(c *chat.Conversation) {
		c.UnreadCount++
	})
}

// ResetUnread zeroes the unread counter of a conversation.
func (s *Store) ResetUnread(conversationID string) bool {
	return s.update(conversationID, func(c *chat.Conversation) {
		c.UnreadCount = 0
	})
}

// SetLastMessage refreshes the list summary of a conversation.
func (s *Store) SetLastMessage(conversationID string, lm chat.LastMessage) bool {
	return s.update(conversationID, func(c *chat.Conversation) {
		c.LastMessage = &lm
	})
}

// update applies fn to every conversation with the id and bumps UpdatedAt,
// never moving it below CreatedAt. The active copy is kept in sync.
func (s *Store) update(conversationID string, fn func(c *chat.Conversation)) bool {
	s.mu.Lock()
	var last *chat.Conversation
	now := s.now()
	for i := range s.convs {
		c := &s.convs[i]
		if c.ID != conversationID {
			continue
		}
		fn(c)
		at := now
		if at.Before(c.CreatedAt) {
			at = c.CreatedAt
		}
		if at.After(c.UpdatedAt) {
			c.UpdatedAt = at
		}
		last = c
	}
	if last == nil {
		s.mu.Unlock()
		return false
	}
	if s.active != nil && s.active.ID == conversationID {
		cp := last.Clone()
		s.active = &cp
	}
	s.mu.Unlock()
	s.bus.Emit(EventConversationUpdated, conversationID, nil)
	return true
}

// Conversations returns a copy of the conversation collection in store order.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConversations(s.convs)
}

// Conversation returns the first conversation with the given id.
func (s *Store) Conversation(conversationID string) (chat.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.convs {
		if c.ID == conversationID {
			return c.Clone(), true
		}
	}
	return chat.Conversation{}, false
}

// Messages returns a copy of the conversation's messages in insertion order.
// The second result is false when no list was ever set for the id.
func (s *Store) Messages(conversationID string) ([]chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.messages[conversationID]
	if !ok {
		return nil, false
	}
	return slices.Clone(msgs), true
}

// ActiveConversation returns the open conversation, or nil.
func (s *Store) ActiveConversation() *chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	cp := s.active.Clone()
	return &cp
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Conversations []chat.Conversation
	Messages      map[string][]chat.Message
	Active        *chat.Conversation
}

// Snapshot copies the entire store state under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Conversations: cloneConversations(s.convs),
		Messages:      make(map[string][]chat.Message, len(s.messages)),
	}
	for id, msgs := range s.messages {
		snap.Messages[id] = slices.Clone(msgs)
	}
	if s.active != nil {
		cp := s.active.Clone()
		snap.Active = &cp
	}
	return snap
}

func cloneConversations(list []chat.Conversation) []chat.Conversation {
	if list == nil {
		return nil
	}
	out := make([]chat.Conversation, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}
