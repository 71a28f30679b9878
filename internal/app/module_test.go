package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/inbox"
	"github.com/matheus3301/chatline/internal/live"
	"github.com/matheus3301/chatline/internal/lock"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/realtime"
	"github.com/matheus3301/chatline/internal/realtime/loopback"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModuleLifecycleFixtures(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())

	cfg := config.Default()
	cfg.AutoReply.MinDelay = config.Duration{Duration: 10 * time.Millisecond}
	cfg.AutoReply.MaxDelay = config.Duration{Duration: 20 * time.Millisecond}

	var (
		sess *live.Session
		st   *store.Store
	)
	app := fxtest.New(t,
		Module(Params{Profile: "test", Config: cfg, ConversationID: "chat-1-private"}),
		fx.Populate(&sess, &st),
	)
	app.RequireStart()

	if sess.State() != live.Bound {
		t.Fatalf("state = %s, want BOUND", sess.State())
	}
	if got := len(st.Conversations()); got != 3 {
		t.Errorf("got %d conversations, want 3", got)
	}

	if _, ok := sess.SendMessage(context.Background(), live.Draft{Content: "hi"}); !ok {
		t.Fatal("SendMessage() reported a no-op")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, _ := st.Messages("chat-1-private")
		if len(msgs) == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d messages, want 5 (sent + scripted reply)", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	app.RequireStop()
	if sess.State() != live.Idle {
		t.Errorf("state = %s after stop, want IDLE", sess.State())
	}
	if _, err := os.Stat(profile.LogPath("test")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestModuleLifecycleSQLite(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())

	cfg := config.Default()
	cfg.Source.Kind = config.SourceSQLite
	cfg.AutoReply.Enabled = false

	var st *store.Store
	app := fxtest.New(t,
		Module(Params{Profile: "test", Config: cfg}),
		fx.Populate(&st),
	)
	app.RequireStart()

	if got := len(st.Conversations()); got != 3 {
		t.Errorf("got %d conversations from seeded database, want 3", got)
	}
	if _, err := os.Stat(profile.DBPath("test")); err != nil {
		t.Errorf("database missing: %v", err)
	}
	app.RequireStop()
}

// TestModuleSQLiteKeepsHistory sends a message and receives a reply in one
// run, then checks a second run over the same profile shows both.
func TestModuleSQLiteKeepsHistory(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())

	cfg := config.Default()
	cfg.Source.Kind = config.SourceSQLite
	cfg.AutoReply.Enabled = false
	params := Params{Profile: "test", Config: cfg, ConversationID: "chat-1-private"}

	var (
		sess *live.Session
		ch   realtime.Channel
		b    *bus.Bus
	)
	first := fxtest.New(t, Module(params), fx.Populate(&sess, &ch, &b))
	first.RequireStart()

	ingested, unsub := b.Subscribe(inbox.EventIngested, 1)
	defer unsub()
	if _, ok := sess.SendMessage(context.Background(), live.Draft{Content: "my question"}); !ok {
		t.Fatal("SendMessage() reported a no-op")
	}
	peer := chat.Message{
		ID:             "msg-peer-1",
		ConversationID: "chat-1-private",
		SenderID:       "user-alice",
		Content:        "my answer",
		Kind:           chat.Text,
		State:          chat.Delivered,
		Timestamp:      time.Now(),
	}
	if err := ch.(*loopback.Channel).Inject(realtime.EventNewMessage, peer); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ingested:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the peer message to be stored")
	}
	first.RequireStop()

	var st *store.Store
	second := fxtest.New(t, Module(params), fx.Populate(&st))
	second.RequireStart()
	defer second.RequireStop()

	msgs, _ := st.Messages("chat-1-private")
	if len(msgs) != 5 {
		t.Fatalf("got %d messages after restart, want 5", len(msgs))
	}
	if msgs[3].Content != "my question" || msgs[4].Content != "my answer" {
		t.Errorf("tail = %q, %q, want sent message then peer reply", msgs[3].Content, msgs[4].Content)
	}
}

func TestModuleRefusesLockedProfile(t *testing.T) {
	t.Setenv(profile.HomeEnv, t.TempDir())

	held, err := lock.Acquire(profile.Dir("test"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	var sess *live.Session
	app := fx.New(
		Module(Params{Profile: "test"}),
		fx.Populate(&sess),
		fx.NopLogger,
	)
	var heldErr *lock.HeldError
	if !errors.As(app.Err(), &heldErr) {
		t.Errorf("app error = %v, want HeldError", app.Err())
	}
}
