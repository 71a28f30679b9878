package live

import (
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

// binding owns everything attached to one bound conversation: channel
// handlers, the join/leave pair, and pending timers. Closing it releases all
// of them, newest first.
type binding struct {
	id   string
	conv chat.Conversation

	mu       sync.Mutex
	closed   bool
	cleanups []func()
	timers   []*time.Timer
	typing   *time.Timer
}

func newBinding(id string) *binding {
	return &binding{id: id}
}

func (b *binding) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// onClose registers fn to run when the binding is closed.
func (b *binding) onClose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		go fn()
		return
	}
	b.cleanups = append(b.cleanups, fn)
}

// afterFunc schedules fn and stops it if the binding closes first.
func (b *binding) afterFunc(d time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.timers = append(b.timers, time.AfterFunc(d, fn))
}

// resetTypingTimer restarts the typing auto-clear timer.
func (b *binding) resetTypingTimer(d time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.typing != nil {
		b.typing.Stop()
	}
	b.typing = time.AfterFunc(d, fn)
}

func (b *binding) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cleanups := b.cleanups
	b.cleanups = nil
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	if b.typing != nil {
		b.typing.Stop()
		b.typing = nil
	}
	b.mu.Unlock()

	for _, fn := range slices.Backward(cleanups) {
		fn()
	}
}
