package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/profile"
	"github.com/matheus3301/chatline/internal/source"
	"github.com/matheus3301/chatline/internal/source/fixtures"
	"github.com/matheus3301/chatline/internal/source/sqlite"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 20, "maximum search results")
	flag.Parse()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fail(err)
	}
	profileName := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(profileName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if err := profile.EnsureDir(profileName); err != nil {
		fail(err)
	}
	db, err := sqlite.Open(profile.DBPath(profileName))
	if err != nil {
		fail(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := &ctl{db: db, out: os.Stdout, json: *jsonFlag}
	if err := c.run(ctx, args, *limitFlag); err != nil {
		if errors.Is(err, errUsage) {
			printUsage()
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [-profile <name>] [-json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  seed                       Load the demo dataset")
	fmt.Fprintln(os.Stderr, "  conversations              List conversations")
	fmt.Fprintln(os.Stderr, "  schema                     Show the database schema version")
	fmt.Fprintln(os.Stderr, "  messages <id>              Show a conversation's messages")
	fmt.Fprintln(os.Stderr, "  search <text> [id]         Search message content")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

type ctl struct {
	db   *sqlite.DB
	out  io.Writer
	json bool
}

func (c *ctl) run(ctx context.Context, args []string, limit int) error {
	switch args[0] {
	case "seed":
		return c.seed(ctx)
	case "conversations":
		return c.conversations(ctx)
	case "schema":
		return c.schema()
	case "messages":
		if len(args) < 2 {
			return errUsage
		}
		return c.messages(ctx, args[1])
	case "search":
		if len(args) < 2 {
			return errUsage
		}
		scope := ""
		if len(args) >= 3 {
			scope = args[2]
		}
		return c.search(ctx, args[1], scope, limit)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *ctl) seed(ctx context.Context) error {
	res, err := c.db.Seed(ctx, fixtures.New(time.Now()))
	if err != nil {
		return err
	}
	if c.json {
		return c.outputJSON(res)
	}
	fmt.Fprintf(c.out, "Seeded %d conversations, %d messages.\n", res.Conversations, res.Messages)
	return nil
}

func (c *ctl) schema() error {
	st, err := c.db.Schema()
	if err != nil {
		return err
	}
	if c.json {
		return c.outputJSON(st)
	}
	dirty := ""
	if st.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(c.out, "%s: schema version %d of %d%s\n", c.db.Path(), st.Version, st.Latest, dirty)
	return nil
}

func (c *ctl) conversations(ctx context.Context) error {
	convs, err := c.db.ListConversations(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return c.outputJSON(convs)
	}
	if len(convs) == 0 {
		fmt.Fprintln(c.out, "No conversations found. Run `chatctl seed` first.")
		return nil
	}
	for _, conv := range convs {
		archived := ""
		if conv.Archived {
			archived = " [archived]"
		}
		fmt.Fprintf(c.out, "%-32s %-8s %-20s unread=%d%s\n", conv.ID, conv.Kind, conv.Name, conv.UnreadCount, archived)
	}
	return nil
}

func (c *ctl) messages(ctx context.Context, id string) error {
	if _, err := c.db.FindConversation(ctx, id); err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return fmt.Errorf("conversation %q not found", id)
		}
		return err
	}
	msgs, err := c.db.Messages(ctx, id)
	if err != nil {
		return err
	}
	if c.json {
		return c.outputJSON(msgs)
	}
	c.printMessages(msgs)
	return nil
}

func (c *ctl) search(ctx context.Context, query, conversationID string, limit int) error {
	msgs, err := c.db.SearchMessages(ctx, query, conversationID, limit)
	if err != nil {
		return err
	}
	if c.json {
		return c.outputJSON(msgs)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(c.out, "No matches.")
		return nil
	}
	c.printMessages(msgs)
	return nil
}

func (c *ctl) printMessages(msgs []chat.Message) {
	for _, m := range msgs {
		name := m.SenderName
		if name == "" {
			name = m.SenderID
		}
		fmt.Fprintf(c.out, "%s  %-24s %-16s %s (%s)\n", m.Timestamp.Format(time.DateTime), m.ConversationID, name, m.Content, m.State)
	}
}

func (c *ctl) outputJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
