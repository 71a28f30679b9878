// Package inbox keeps the conversation list current while the user is
// looking at some other conversation (or none), and owns the list-level
// actions: starting private chats, archiving, filtering.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/realtime"
	"github.com/matheus3301/chatline/internal/source"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

// EventIngested is published after a pushed message was applied.
const EventIngested = "inbox.message_ingested"

// Engine listens for list-level events on the channel for the whole client
// lifetime and folds them into the store, writing through to the sink.
type Engine struct {
	store   *store.Store
	channel realtime.Channel
	sink    source.Sink
	bus     *bus.Bus
	logger  *zap.Logger
	now     func() time.Time
	cancel  context.CancelFunc
}

// NewEngine creates a new inbox engine. ch and sink may be nil.
func NewEngine(st *store.Store, ch realtime.Channel, sink source.Sink, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   st,
		channel: ch,
		sink:    sink,
		bus:     b,
		logger:  logger,
		now:     time.Now,
	}
}

// Start subscribes to pushed messages, conversation changes and delivery
// acknowledgments. It is a no-op without a channel.
func (e *Engine) Start(ctx context.Context) {
	if e.channel == nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	unsubs := []func(){
		on(ctx, e, realtime.EventNewMessage, e.Ingest),
		on(ctx, e, realtime.EventNewChat, e.AddConversation),
		on(ctx, e, realtime.EventChatUpdated, e.UpdateConversation),
		on(ctx, e, realtime.EventMessageStatus, e.ApplyStatus),
	}

	go func() {
		<-ctx.Done()
		for _, unsub := range unsubs {
			unsub()
		}
	}()
}

// on registers a handler that decodes the payload into T before calling fn.
func on[T any](ctx context.Context, e *Engine, event string, fn func(context.Context, *T) error) func() {
	return e.channel.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			e.logger.Warn("malformed event", zap.String("event", event), zap.Error(err))
			return
		}
		if err := fn(ctx, &v); err != nil {
			e.logger.Error("failed to apply event", zap.String("event", event), zap.Error(err))
		}
	})
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Ingest applies one pushed message: the conversation's last-message summary
// is refreshed and, unless it is the open conversation, its unread counter
// goes up. Messages for unknown conversations are dropped. The message list
// itself belongs to the live session and is not touched here.
func (e *Engine) Ingest(ctx context.Context, m *chat.Message) error {
	if m.ConversationID == "" {
		return fmt.Errorf("message %s has no conversation", m.ID)
	}
	if !e.store.SetLastMessage(m.ConversationID, m.Summary()) {
		e.logger.Debug("message for unknown conversation", zap.String("conversation", m.ConversationID))
		return nil
	}

	active := e.store.ActiveConversation()
	if active == nil || active.ID != m.ConversationID {
		e.store.IncrementUnread(m.ConversationID)
	}

	if err := e.persistConversation(ctx, m.ConversationID); err != nil {
		return err
	}
	if e.sink != nil {
		if err := e.sink.UpsertMessage(ctx, m); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
	}

	e.bus.Emit(EventIngested, m.ConversationID, m.ID)
	return nil
}

// AddConversation puts c at the top of the list, replacing an entry with the
// same id.
func (e *Engine) AddConversation(ctx context.Context, c *chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	e.store.AddConversation(*c)
	if e.sink != nil {
		if err := e.sink.UpsertConversation(ctx, c); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
	}
	return nil
}

// UpdateConversation replaces the listed conversation with c as received.
// Unknown ids are ignored.
func (e *Engine) UpdateConversation(ctx context.Context, c *chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !e.store.ReplaceConversation(*c) {
		e.logger.Debug("update for unknown conversation", zap.String("conversation", c.ID))
		return nil
	}
	if e.sink != nil {
		if err := e.sink.UpsertConversation(ctx, c); err != nil {
			return fmt.Errorf("persist conversation: %w", err)
		}
	}
	return nil
}

// ApplyStatus advances the delivery state of a loaded message. A status that
// would move the message backwards is ignored.
func (e *Engine) ApplyStatus(ctx context.Context, p *realtime.StatusPayload) error {
	msgs, _ := e.store.Messages(p.ChatID)
	i := slices.IndexFunc(msgs, func(m chat.Message) bool { return m.ID == p.MessageID })
	if i < 0 {
		return nil
	}
	m := msgs[i]
	if !m.State.CanAdvance(p.Status) {
		e.logger.Debug("ignoring stale delivery state",
			zap.String("msg_id", m.ID), zap.String("from", string(m.State)), zap.String("to", string(p.Status)))
		return nil
	}
	e.store.SetDeliveryState(p.ChatID, p.MessageID, p.Status)
	if e.sink != nil {
		m.State = p.Status
		if err := e.sink.UpsertMessage(ctx, &m); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
	}
	return nil
}

// ToggleArchived flips the archived flag of a conversation and writes it
// through. It reports false for unknown ids.
func (e *Engine) ToggleArchived(ctx context.Context, conversationID string) (bool, error) {
	if !e.store.ToggleArchived(conversationID) {
		return false, nil
	}
	return true, e.persistConversation(ctx, conversationID)
}

// OpenPrivate returns the two-person private conversation between local and
// target, creating and listing it first when none exists. The second result
// reports whether it was created.
func (e *Engine) OpenPrivate(ctx context.Context, local, target chat.User) (chat.Conversation, bool, error) {
	if local.ID == "" || target.ID == "" || local.ID == target.ID {
		return chat.Conversation{}, false, fmt.Errorf("cannot start a private chat between %q and %q", local.ID, target.ID)
	}
	for _, c := range e.store.Conversations() {
		if c.Kind != chat.Private || len(c.Participants) != 2 {
			continue
		}
		_, hasLocal := c.Participant(local.ID)
		_, hasTarget := c.Participant(target.ID)
		if hasLocal && hasTarget {
			return c, false, nil
		}
	}

	name := target.DisplayName
	if name == "" {
		name = target.Username
	}
	now := e.now()
	c := chat.Conversation{
		ID:           chat.NewConversationID(),
		Name:         name,
		Kind:         chat.Private,
		Avatar:       target.Avatar,
		Participants: []chat.Participant{participant(local), participant(target)},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.AddConversation(ctx, &c); err != nil {
		return chat.Conversation{}, false, err
	}
	e.logger.Info("private conversation created", zap.String("conversation", c.ID), zap.String("with", target.ID))
	return c, true, nil
}

func participant(u chat.User) chat.Participant {
	return chat.Participant{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Presence: u.Presence}
}

// List returns the active or archived conversations, in store order, whose
// name or last message contains query (case-insensitive). An empty query
// matches everything.
func (e *Engine) List(query string, archived bool) []chat.Conversation {
	q := strings.ToLower(query)
	var out []chat.Conversation
	for _, c := range e.store.Conversations() {
		if c.Archived != archived {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) ||
			(c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), q)) {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) persistConversation(ctx context.Context, conversationID string) error {
	if e.sink == nil {
		return nil
	}
	c, ok := e.store.Conversation(conversationID)
	if !ok {
		return nil
	}
	if err := e.sink.UpsertConversation(ctx, &c); err != nil {
		return fmt.Errorf("persist conversation: %w", err)
	}
	return nil
}
