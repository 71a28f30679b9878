package live

import (
	"testing"

	"github.com/matheus3301/chatline/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Loading},
		{Loading, Bound},
		{Loading, Error},
		{Loading, Idle},
		{Bound, Loading},
		{Bound, Idle},
		{Error, Loading},
		{Error, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to, "c"); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Bound},
		{Idle, Error},
		{Bound, Error},
		{Error, Bound},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to, "c"); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s after rejected transition, want %s", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Loading, "chat-1"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != EventStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, EventStateChanged)
	}
	if evt.ConversationID != "chat-1" {
		t.Errorf("conversation = %q, want chat-1", evt.ConversationID)
	}
	change, ok := evt.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T, want StateChange", evt.Payload)
	}
	if change.From != Idle || change.To != Loading {
		t.Errorf("change = %v -> %v, want IDLE -> LOADING", change.From, change.To)
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:    {},
		Loading: {Loading},
		Bound:   {Loading, Bound},
		Error:   {Loading, Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s, "c"); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
