package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/chat"
	"github.com/matheus3301/chatline/internal/identity"
	"github.com/matheus3301/chatline/internal/inbox"
	"github.com/matheus3301/chatline/internal/live"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type consoleParams struct {
	Send string
}

// console renders the bound conversation as plain lines and turns stdin
// lines into session actions.
type console struct {
	sess  *live.Session
	st    *store.Store
	inbox *inbox.Engine
	dir   *identity.Directory
	ident identity.Provider
	out   io.Writer

	mu sync.Mutex
}

type consoleDeps struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Params     consoleParams
	Session    *live.Session
	Store      *store.Store
	Inbox      *inbox.Engine
	Directory  *identity.Directory
	Identity   identity.Provider
	Bus        *bus.Bus
	Logger     *zap.Logger
}

func registerConsole(d consoleDeps) {
	c := &console{
		sess:  d.Session,
		st:    d.Store,
		inbox: d.Inbox,
		dir:   d.Directory,
		ident: d.Identity,
		out:   os.Stdout,
	}
	ctx, cancel := context.WithCancel(context.Background())

	d.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			events, unsub := d.Bus.Subscribe("", 256)
			go func() {
				defer unsub()
				for {
					select {
					case evt := <-events:
						c.handleEvent(evt)
					case <-ctx.Done():
						return
					}
				}
			}()

			c.printThread()
			if d.Params.Send != "" {
				c.send(ctx, d.Params.Send)
			}

			go func() {
				c.readLoop(ctx, os.Stdin)
				if err := d.Shutdowner.Shutdown(); err != nil {
					d.Logger.Warn("shutdown failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return nil
		},
	})
}

func (c *console) readLoop(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if quit := c.execute(ctx, scanner.Text()); quit {
			return
		}
	}
}

// execute runs one input line. It reports whether the user asked to quit.
func (c *console) execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "q":
		return true
	case "list", "ls":
		c.printConversations(arg, false)
	case "archived":
		c.printConversations(arg, true)
	case "users":
		c.printUsers(arg)
	case "new":
		if arg == "" {
			c.println("usage: /new <user>")
			return false
		}
		c.startChat(ctx, arg)
	case "open":
		if arg == "" {
			c.println("usage: /open <conversation-id>")
			return false
		}
		if c.sess.Bind(ctx, arg) != live.Bound {
			c.println("error: " + c.sess.Err())
			return false
		}
		c.printThread()
	case "close":
		c.sess.Unbind()
	case "archive":
		id := arg
		if id == "" {
			id = c.sess.ConversationID()
		}
		ok, err := c.inbox.ToggleArchived(ctx, id)
		switch {
		case err != nil:
			c.println("error: " + err.Error())
		case !ok:
			c.println("error: no conversation " + id)
		}
	case "typing":
		c.sess.SendTyping(ctx)
	case "help":
		c.println(helpText)
	default:
		c.println("unknown command /" + cmd + " (try /help)")
	}
	return false
}

const helpText = `commands:
  /list [text]     List conversations, filtered by name or last message
  /archived [text] List archived conversations
  /users <text>    Search users
  /new <user>      Open a private conversation with a user, starting one if needed
  /open <id>       Open a conversation
  /close           Close the open conversation
  /archive [id]    Toggle archived
  /typing          Send a typing notification
  /quit            Exit
anything else is sent as a message`

func (c *console) send(ctx context.Context, text string) {
	c.sess.SendTyping(ctx)
	if _, ok := c.sess.SendMessage(ctx, live.Draft{Content: text}); !ok {
		c.println("no open conversation (use /open <id>)")
	}
}

// startChat resolves key to a user by id, username or a unique search hit
// and opens the private conversation with them.
func (c *console) startChat(ctx context.Context, key string) {
	local, ok := c.ident.Current()
	if !ok {
		c.println("error: no local user")
		return
	}
	target, ok := c.dir.Lookup(key)
	if !ok {
		matches := c.dir.Search(key, local.ID)
		switch len(matches) {
		case 0:
			c.println("no user matches " + sanitize(key))
			return
		case 1:
			target = matches[0]
		default:
			c.println(fmt.Sprintf("%d users match %s:", len(matches), sanitize(key)))
			for _, u := range matches {
				c.println(formatUser(u))
			}
			return
		}
	}

	conv, created, err := c.inbox.OpenPrivate(ctx, local, target)
	if err != nil {
		c.println("error: " + err.Error())
		return
	}
	if created {
		c.println("started conversation " + conv.ID)
	}
	if c.sess.Bind(ctx, conv.ID) != live.Bound {
		c.println("error: " + c.sess.Err())
		return
	}
	c.printThread()
}

func (c *console) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case store.EventConversationAdded:
		if conv, ok := c.st.Conversation(evt.ConversationID); ok {
			c.println("  new conversation: " + formatConversation(conv))
		}
	case store.EventMessageAppended:
		m, ok := evt.Payload.(chat.Message)
		if ok && evt.ConversationID == c.sess.ConversationID() {
			c.println(formatMessage(m))
		}
	case live.EventTypingChanged:
		if name, _ := evt.Payload.(string); name != "" {
			c.println("  " + sanitize(name) + " is typing...")
		}
	case store.EventConversationUpdated:
		if conv, ok := c.st.Conversation(evt.ConversationID); ok && evt.ConversationID != c.sess.ConversationID() && conv.UnreadCount > 0 {
			c.println(fmt.Sprintf("  (%d unread in %s)", conv.UnreadCount, sanitize(conv.Name)))
		}
	}
}

func (c *console) printThread() {
	snap := c.st.Snapshot()
	active := snap.Active
	if active == nil {
		if msg := c.sess.Err(); msg != "" {
			c.println("error: " + msg)
		}
		return
	}
	c.println(fmt.Sprintf("== %s (%s, %d participants)", sanitize(active.Name), active.Kind, len(active.Participants)))
	for _, m := range snap.Messages[active.ID] {
		c.println(formatMessage(m))
	}
}

func (c *console) printConversations(query string, archived bool) {
	list := c.inbox.List(query, archived)
	if len(list) == 0 {
		c.println("no conversations")
		return
	}
	for _, conv := range list {
		c.println(formatConversation(conv))
	}
}

func (c *console) printUsers(query string) {
	local, _ := c.ident.Current()
	users := c.dir.Search(query, local.ID)
	if len(users) == 0 {
		c.println("no users")
		return
	}
	for _, u := range users {
		c.println(formatUser(u))
	}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func formatMessage(m chat.Message) string {
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	body := m.Content
	switch m.Kind {
	case chat.Text, "":
	case chat.File:
		body = fmt.Sprintf("[file %s, %d bytes] %s", m.FileName, m.FileSize, m.Content)
	case chat.Location:
		body = fmt.Sprintf("[location %.5f,%.5f] %s", m.Latitude, m.Longitude, m.Content)
	default:
		body = fmt.Sprintf("[%s %s] %s", m.Kind, m.URL, m.Content)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", m.Timestamp.Format("15:04"), sanitize(name), sanitize(strings.TrimSpace(body)), m.State)
}

func formatConversation(c chat.Conversation) string {
	flags := ""
	if c.Archived {
		flags += " [archived]"
	}
	if c.UnreadCount > 0 {
		flags += fmt.Sprintf(" (%d unread)", c.UnreadCount)
	}
	last := ""
	if c.LastMessage != nil {
		last = " - " + sanitize(c.LastMessage.Content)
	}
	return fmt.Sprintf("%-32s %-8s %s%s%s", c.ID, c.Kind, sanitize(c.Name), flags, last)
}

func formatUser(u chat.User) string {
	return fmt.Sprintf("%-24s %-16s %s (%s)", u.ID, sanitize(u.Username), sanitize(u.DisplayName), u.Presence)
}

// sanitize strips control characters and emoji modifiers that break
// line-oriented terminals.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	// C0 controls and DEL, which could move the cursor or clear lines.
	case r < 0x20 || r == 0x7F:
		return true
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	default:
		return false
	}
}
