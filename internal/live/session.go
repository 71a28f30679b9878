// Package live binds the currently viewed conversation to the store and to
// an optional real-time channel, and implements the user's send and typing
// actions.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/realtime"
	"github.com/matheus3301/chatline/internal/source"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

// EventTypingChanged is published when the typing indicator changes.
// The payload is the username, empty when cleared.
const EventTypingChanged = "session.typing_changed"

// DefaultTypingWindow is how long a typing indicator stays up after the
// most recent typing event.
const DefaultTypingWindow = 3 * time.Second

const (
	emitTimeout    = 2 * time.Second
	persistTimeout = 5 * time.Second
)

// Options tunes a Session.
type Options struct {
	TypingWindow time.Duration
	Now          func() time.Time
	// Sink receives sent messages, scripted replies and unread resets.
	// Optional.
	Sink source.Sink
}

func (o Options) withDefaults() Options {
	if o.TypingWindow <= 0 {
		o.TypingWindow = DefaultTypingWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Draft is the user input for SendMessage. Optional fields are only kept
// when Kind uses them.
type Draft struct {
	Content   string
	Kind      chat.PayloadKind
	URL       string
	FileName  string
	FileSize  int64
	Latitude  float64
	Longitude float64
}

// Session is the live adapter for one conversation view.
type Session struct {
	store    *store.Store
	src      source.DataSource
	channel  realtime.Channel
	identity identity.Provider
	replier  Replier
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options
	machine  *Machine

	mu      sync.Mutex
	binding *binding
	errMsg  string
	typing  string
}

// NewSession creates an idle session. channel and replier may be nil.
func NewSession(
	st *store.Store,
	src source.DataSource,
	channel realtime.Channel,
	id identity.Provider,
	replier Replier,
	b *bus.Bus,
	logger *zap.Logger,
	opts Options,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		store:    st,
		src:      src,
		channel:  channel,
		identity: id,
		replier:  replier,
		bus:      b,
		logger:   logger,
		opts:     opts.withDefaults(),
		machine:  NewMachine(b),
	}
}

// State returns the binding state.
func (s *Session) State() State {
	return s.machine.Current()
}

// ConversationID returns the bound conversation id, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return ""
	}
	return s.binding.id
}

// Err returns the user-visible error of the last Bind, or "".
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Typing returns the username currently shown as typing, or "".
func (s *Session) Typing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Bind switches the session to conversationID. The previous binding, if
// any, is torn down first. An empty id is the same as Unbind. Lookup
// failures end in Error with a message available from Err.
//
// The data source and the channel are called without holding the session
// lock. A Bind or Unbind issued meanwhile wins, and the superseded call
// returns the state left by the newer one.
func (s *Session) Bind(ctx context.Context, conversationID string) State {
	s.mu.Lock()
	s.closeBindingLocked()
	if conversationID == "" {
		s.store.SetActiveConversation(nil)
		s.transitionLocked(Idle, "")
		s.mu.Unlock()
		return Idle
	}
	s.errMsg = ""
	s.transitionLocked(Loading, conversationID)
	b := newBinding(conversationID)
	s.binding = b
	s.mu.Unlock()

	conv, msgs, err := s.load(ctx, conversationID)

	s.mu.Lock()
	if s.binding != b {
		state := s.machine.Current()
		s.mu.Unlock()
		return state
	}
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			s.errMsg = fmt.Sprintf("Chat with ID %s not found.", conversationID)
		} else {
			s.errMsg = fmt.Sprintf("Could not load chat %s: %v", conversationID, err)
			s.logger.Error("failed to load conversation", zap.String("conversation", conversationID), zap.Error(err))
		}
		s.store.SetActiveConversation(nil)
		s.store.SetMessages(conversationID, []chat.Message{})
		s.transitionLocked(Error, conversationID)
		s.mu.Unlock()
		return Error
	}

	b.conv = conv
	s.store.SetActiveConversation(&conv)
	s.store.SetMessages(conversationID, msgs)
	reset := s.store.ResetUnread(conversationID)
	s.transitionLocked(Bound, conversationID)
	connected := s.channel != nil && s.channel.Connected()
	s.mu.Unlock()

	if reset {
		s.persistConversation(ctx, conversationID)
	}
	if connected {
		s.subscribe(b)
	}
	return Bound
}

func (s *Session) load(ctx context.Context, conversationID string) (chat.Conversation, []chat.Message, error) {
	conv, err := s.src.FindConversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, nil, err
	}
	msgs, err := s.src.Messages(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

// Unbind tears down the current binding and returns to Idle.
func (s *Session) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBindingLocked()
	s.transitionLocked(Idle, "")
}

// SendMessage appends a new message from the local user to the bound
// conversation right away, writes it to the sink, forwards it upstream
// when the channel is connected, and schedules a scripted reply when a
// Replier is configured. Without a binding or a local user it does nothing
// and returns false.
func (s *Session) SendMessage(ctx context.Context, d Draft) (chat.Message, bool) {
	user, ok := s.identity.Current()
	if !ok {
		return chat.Message{}, false
	}

	s.mu.Lock()
	b := s.binding
	if b == nil || s.machine.Current() != Bound {
		s.mu.Unlock()
		return chat.Message{}, false
	}
	m := buildMessage(b.id, user, d, s.opts.Now())
	s.store.AppendMessage(b.id, m)
	if s.replier != nil {
		s.scheduleReplyLocked(b, user.ID, m)
	}
	s.mu.Unlock()

	s.persistMessage(ctx, &m)
	if s.channel != nil && s.channel.Connected() {
		if err := s.channel.Emit(ctx, realtime.EventSendMessage, realtime.NewSendMessagePayload(&m)); err != nil {
			s.logger.Warn("failed to emit message", zap.String("conversation", b.id), zap.String("msg_id", m.ID), zap.Error(err))
		}
	}
	return m, true
}

// SendTyping tells the channel the local user is typing in the bound
// conversation. It has no local effect.
func (s *Session) SendTyping(ctx context.Context) {
	user, ok := s.identity.Current()
	if !ok || s.channel == nil || !s.channel.Connected() {
		return
	}
	id := s.ConversationID()
	if id == "" || s.State() != Bound {
		return
	}
	if err := s.channel.Emit(ctx, realtime.EventTyping, realtime.TypingPayload{
		ChatID:   id,
		UserID:   user.ID,
		Username: user.Username,
	}); err != nil {
		s.logger.Warn("failed to emit typing", zap.String("conversation", id), zap.Error(err))
	}
}

func buildMessage(conversationID string, user chat.User, d Draft, now time.Time) chat.Message {
	kind := d.Kind
	if kind == "" {
		kind = chat.Text
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	m := chat.Message{
		ID:             chat.NewMessageID(),
		ConversationID: conversationID,
		SenderID:       user.ID,
		SenderName:     name,
		Content:        d.Content,
		Kind:           kind,
		State:          chat.Sent,
		Timestamp:      now,
	}
	if kind.HasURL() {
		m.URL = d.URL
	}
	if kind == chat.File {
		m.FileName = d.FileName
		m.FileSize = d.FileSize
	}
	if kind == chat.Location {
		m.Latitude = d.Latitude
		m.Longitude = d.Longitude
	}
	return m
}

// subscribe attaches the channel handlers and joins the conversation room.
// Everything it registers is released when b closes, including when b was
// closed by a concurrent Bind before it got here.
func (s *Session) subscribe(b *binding) {
	b.onClose(s.channel.On(realtime.EventNewMessage, s.newMessageHandler(b)))
	b.onClose(s.channel.On(realtime.EventTyping, s.typingHandler(b)))
	if b.isClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := s.channel.Emit(ctx, realtime.EventJoin, realtime.RoomPayload{ChatID: b.id}); err != nil {
		s.logger.Warn("failed to join conversation", zap.String("conversation", b.id), zap.Error(err))
	}
	b.onClose(func() {
		if !s.channel.Connected() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := s.channel.Emit(ctx, realtime.EventLeave, realtime.RoomPayload{ChatID: b.id}); err != nil {
			s.logger.Warn("failed to leave conversation", zap.String("conversation", b.id), zap.Error(err))
		}
	})
	s.logger.Debug("conversation joined", zap.String("conversation", b.id))
}

func (s *Session) newMessageHandler(b *binding) realtime.Handler {
	return func(data json.RawMessage) {
		var m chat.Message
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn("malformed new_message event", zap.Error(err))
			return
		}
		if m.ConversationID != b.id {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.binding != b {
			return
		}
		s.store.AppendMessage(b.id, m)
	}
}

func (s *Session) typingHandler(b *binding) realtime.Handler {
	return func(data json.RawMessage) {
		var p realtime.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("malformed typing event", zap.Error(err))
			return
		}
		if p.ChatID != "" && p.ChatID != b.id {
			return
		}
		if user, ok := s.identity.Current(); ok && p.UserID == user.ID {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.binding != b {
			return
		}
		s.setTypingLocked(p.Username)
		b.resetTypingTimer(s.opts.TypingWindow, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.binding != b {
				return
			}
			s.setTypingLocked("")
		})
	}
}

func (s *Session) scheduleReplyLocked(b *binding, localUserID string, sent chat.Message) {
	reply, delay, ok := s.replier.Reply(b.conv, localUserID, sent)
	if !ok {
		return
	}
	b.afterFunc(delay, func() {
		s.mu.Lock()
		if s.binding != b {
			s.mu.Unlock()
			return
		}
		reply.Timestamp = s.opts.Now()
		s.store.AppendMessage(b.id, reply)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		s.persistMessage(ctx, &reply)
	})
}

func (s *Session) persistMessage(ctx context.Context, m *chat.Message) {
	if s.opts.Sink == nil {
		return
	}
	if err := s.opts.Sink.UpsertMessage(ctx, m); err != nil {
		s.logger.Warn("failed to persist message", zap.String("conversation", m.ConversationID), zap.String("msg_id", m.ID), zap.Error(err))
	}
}

func (s *Session) persistConversation(ctx context.Context, conversationID string) {
	if s.opts.Sink == nil {
		return
	}
	c, ok := s.store.Conversation(conversationID)
	if !ok {
		return
	}
	if err := s.opts.Sink.UpsertConversation(ctx, &c); err != nil {
		s.logger.Warn("failed to persist conversation", zap.String("conversation", conversationID), zap.Error(err))
	}
}

func (s *Session) setTypingLocked(username string) {
	if s.typing == username {
		return
	}
	s.typing = username
	id := ""
	if s.binding != nil {
		id = s.binding.id
	}
	s.bus.Emit(EventTypingChanged, id, username)
}

// closeBindingLocked releases the current binding and clears the typing
// indicator.
func (s *Session) closeBindingLocked() {
	if s.binding == nil {
		return
	}
	s.binding.close()
	s.binding = nil
	s.setTypingLocked("")
}

func (s *Session) transitionLocked(to State, conversationID string) {
	if s.machine.Current() == to {
		return
	}
	if err := s.machine.Transition(to, conversationID); err != nil {
		s.logger.Error("session state transition failed", zap.Error(err))
	}
}
