package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/source/sqlite"
)

func testCtl(t *testing.T, jsonOut bool) (*ctl, *bytes.Buffer) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ctl.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return &ctl{db: db, out: &out, json: jsonOut}, &out
}

func TestSeedThenList(t *testing.T) {
	c, out := testCtl(t, false)
	ctx := context.Background()

	if err := c.run(ctx, []string{"conversations"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No conversations found") {
		t.Errorf("output = %q, want empty hint", out.String())
	}

	out.Reset()
	if err := c.run(ctx, []string{"seed"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Seeded 3 conversations, 7 messages.") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := c.run(ctx, []string{"conversations"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "chat-2-group") || !strings.Contains(out.String(), "[archived]") {
		t.Errorf("output = %q", out.String())
	}
}

func TestMessagesJSON(t *testing.T) {
	c, out := testCtl(t, true)
	ctx := context.Background()
	if err := c.run(ctx, []string{"seed"}, 10); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := c.run(ctx, []string{"messages", "chat-1-private"}, 10); err != nil {
		t.Fatal(err)
	}
	var msgs []chat.Message
	if err := json.Unmarshal(out.Bytes(), &msgs); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "msg-1-1" {
		t.Errorf("got %d messages, want 3 starting at msg-1-1", len(msgs))
	}
}

func TestMessagesUnknownConversation(t *testing.T) {
	c, _ := testCtl(t, false)
	err := c.run(context.Background(), []string{"messages", "nope"}, 10)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestSearch(t *testing.T) {
	c, out := testCtl(t, false)
	ctx := context.Background()
	if err := c.run(ctx, []string{"seed"}, 10); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := c.run(ctx, []string{"search", "meeting"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Meeting at 3 PM today?") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	if err := c.run(ctx, []string{"search", "meeting", "chat-1-private"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No matches.") {
		t.Errorf("output = %q, want no matches", out.String())
	}
}

func TestSchemaCommand(t *testing.T) {
	c, out := testCtl(t, false)
	if err := c.run(context.Background(), []string{"schema"}, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "schema version 1 of 1") {
		t.Errorf("output = %q, want current schema version", out.String())
	}
}

func TestUsageErrors(t *testing.T) {
	c, _ := testCtl(t, false)
	ctx := context.Background()
	if err := c.run(ctx, []string{"messages"}, 10); !errors.Is(err, errUsage) {
		t.Errorf("messages without id error = %v, want usage", err)
	}
	if err := c.run(ctx, []string{"bogus"}, 10); err == nil {
		t.Error("unknown command should fail")
	}
}
