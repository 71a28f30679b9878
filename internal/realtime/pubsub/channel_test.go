package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/realtime"
)

// liveChannel connects to $CHATLINE_TEST_REDIS_URL or skips.
func liveChannel(t *testing.T) *Channel {
	t.Helper()
	url := os.Getenv("CHATLINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHATLINE_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.prefix = "chatline-test-" + t.Name()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialRejectsBadURL(t *testing.T) {
	if _, err := Dial(context.Background(), "http://example.com", nil); err == nil {
		t.Error("Dial(http://) should fail")
	}
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "redis://127.0.0.1:1/0", nil); err == nil {
		t.Error("Dial to closed port succeeded")
	}
}

func TestEmitAndReceive(t *testing.T) {
	c := liveChannel(t)

	got := make(chan realtime.TypingPayload, 1)
	unsub := c.On(realtime.EventTyping, func(data json.RawMessage) {
		var p realtime.TypingPayload
		if err := json.Unmarshal(data, &p); err == nil {
			got <- p
		}
	})
	defer unsub()

	want := realtime.TypingPayload{ChatID: "chat-1", UserID: "u2", Username: "bob"}
	if err := c.Emit(context.Background(), realtime.EventTyping, want); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-got:
		if p != want {
			t.Errorf("payload = %+v, want %+v", p, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for published event")
	}
}

func TestCloseDisconnects(t *testing.T) {
	c := liveChannel(t)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Connected() {
		t.Error("Connected() = true after Close")
	}
	if err := c.Emit(context.Background(), realtime.EventTyping, nil); !errors.Is(err, realtime.ErrDisconnected) {
		t.Errorf("Emit after Close err = %v, want ErrDisconnected", err)
	}
}
