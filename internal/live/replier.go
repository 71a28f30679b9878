package live

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// Replier produces a simulated peer response to a message the local user
// sent. It is a demo affordance: sessions talking to a real backend run
// without one.
type Replier interface {
	// Reply returns the response and how long to wait before delivering it.
	// ok is false when nobody in the conversation can answer.
	Reply(conv chat.Conversation, localUserID string, sent chat.Message) (reply chat.Message, delay time.Duration, ok bool)
}

// CannedReplies is the default pool of scripted responses.
var CannedReplies = []string{
	"Got it!",
	"Thanks for the message.",
	"Interesting point.",
	"I'll look into that.",
	"Okay, sounds good.",
	"👍",
	"😄",
}

// Default scripted reply delay bounds.
const (
	DefaultReplyMinDelay = 500 * time.Millisecond
	DefaultReplyMaxDelay = 2000 * time.Millisecond
)

// ScriptedReplier answers as the first other participant with a random
// canned reply after a delay drawn uniformly from [MinDelay, MaxDelay).
type ScriptedReplier struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Replies  []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScriptedReplier returns a replier with the default pool. rng may be nil
// to use the global source.
func NewScriptedReplier(minDelay, maxDelay time.Duration, rng *rand.Rand) *ScriptedReplier {
	return &ScriptedReplier{
		MinDelay: minDelay,
		MaxDelay: maxDelay,
		Replies:  CannedReplies,
		rng:      rng,
	}
}

func (r *ScriptedReplier) Reply(conv chat.Conversation, localUserID string, sent chat.Message) (chat.Message, time.Duration, bool) {
	others := conv.OtherParticipants(localUserID)
	if len(others) == 0 || len(r.Replies) == 0 {
		return chat.Message{}, 0, false
	}
	responder := others[0]

	delay := r.MinDelay
	r.mu.Lock()
	content := r.Replies[r.intN(len(r.Replies))]
	if span := r.MaxDelay - r.MinDelay; span > 0 {
		delay += time.Duration(r.int64N(int64(span)))
	}
	r.mu.Unlock()

	return chat.Message{
		ID:             chat.NewMessageID() + "-response",
		ConversationID: sent.ConversationID,
		SenderID:       responder.ID,
		SenderName:     responder.Username,
		Content:        content,
		Kind:           chat.Text,
		State:          chat.Read,
	}, delay, true
}

func (r *ScriptedReplier) intN(n int) int {
	if r.rng != nil {
		return r.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (r *ScriptedReplier) int64N(n int64) int64 {
	if r.rng != nil {
		return r.rng.Int64N(n)
	}
	return rand.Int64N(n)
}
