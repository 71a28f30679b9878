package loopback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/realtime"
)

func TestEmitPublishesOutbound(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(OutboundPrefix, 10)
	defer unsub()

	c := New(b)
	if err := c.Emit(context.Background(), realtime.EventJoin, realtime.RoomPayload{ChatID: "chat-1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != OutboundPrefix+realtime.EventJoin {
			t.Errorf("kind = %q, want %q", evt.Kind, OutboundPrefix+realtime.EventJoin)
		}
		var p realtime.RoomPayload
		if err := json.Unmarshal(evt.Payload.(json.RawMessage), &p); err != nil {
			t.Fatal(err)
		}
		if p.ChatID != "chat-1" {
			t.Errorf("chatId = %q, want chat-1", p.ChatID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for outbound event")
	}
}

func TestEmitDisconnected(t *testing.T) {
	c := New(bus.New())
	c.SetConnected(false)
	if c.Connected() {
		t.Fatal("Connected() = true after SetConnected(false)")
	}
	err := c.Emit(context.Background(), realtime.EventTyping, nil)
	if !errors.Is(err, realtime.ErrDisconnected) {
		t.Errorf("err = %v, want ErrDisconnected", err)
	}
}

func TestInjectDispatchesToHandler(t *testing.T) {
	c := New(bus.New())
	got := make(chan realtime.TypingPayload, 1)
	off := c.On(realtime.EventTyping, func(data json.RawMessage) {
		var p realtime.TypingPayload
		if err := json.Unmarshal(data, &p); err == nil {
			got <- p
		}
	})
	defer off()

	if err := c.Inject(realtime.EventTyping, realtime.TypingPayload{ChatID: "chat-1", UserID: "u2", Username: "bob"}); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.UserID != "u2" || p.Username != "bob" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestOnIgnoresPrefixSiblings(t *testing.T) {
	c := New(bus.New())
	called := make(chan struct{}, 1)
	off := c.On(realtime.EventTyping, func(json.RawMessage) { called <- struct{}{} })
	defer off()

	_ = c.Inject(realtime.EventTyping+"_stopped", struct{}{})

	select {
	case <-called:
		t.Error("handler called for a different event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := New(bus.New())
	called := make(chan struct{}, 1)
	off := c.On(realtime.EventNewMessage, func(json.RawMessage) { called <- struct{}{} })
	off()
	off()

	_ = c.Inject(realtime.EventNewMessage, struct{}{})

	select {
	case <-called:
		t.Error("handler called after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
