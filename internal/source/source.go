// Package source defines where conversations and their history come from.
// Implementations include a static fixture set and a SQLite database; a
// network-backed source can be added without touching callers.
package source

import (
	"context"
	"errors"

	"github.com/matheus3301/chatline/internal/chat"
)

// ErrNotFound is returned when a conversation id has no record.
var ErrNotFound = errors.New("conversation not found")

// DataSource supplies conversations and message history.
type DataSource interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	// Messages returns the history of a conversation in insertion order.
	// An unknown id yields an empty list, not an error.
	Messages(ctx context.Context, conversationID string) ([]chat.Message, error)
	FindConversation(ctx context.Context, conversationID string) (chat.Conversation, error)
}

// Sink writes local changes back to a source so that a later load sees them.
// Upserts are keyed by id and safe to repeat.
type Sink interface {
	UpsertConversation(ctx context.Context, c *chat.Conversation) error
	UpsertMessage(ctx context.Context, m *chat.Message) error
}
