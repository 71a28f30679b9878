// Package ws is a realtime.Channel over a WebSocket connection. Frames are
// JSON envelopes of the form {"event": "<name>", "data": <payload>}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/realtime"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Envelope is the frame exchanged with the server.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const closeGrace = time.Second

// Outbound events per second allowed before Emit starts waiting.
const (
	emitRate  = 20
	emitBurst = 20
)

// Client is a WebSocket-backed realtime.Channel.
type Client struct {
	conn      *websocket.Conn
	logger    *zap.Logger
	limiter   *rate.Limiter
	writeMu   sync.Mutex
	mu        sync.RWMutex
	handlers  map[string]map[int]realtime.Handler
	next      int
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

var _ realtime.Channel = (*Client)(nil)

// Dial connects to url and starts the read loop.
func Dial(ctx context.Context, url string, header http.Header, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:     conn,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(emitRate), emitBurst),
		handlers: make(map[string]map[int]realtime.Handler),
		done:     make(chan struct{}),
	}
	c.connected.Store(true)
	go c.readLoop()
	logger.Info("realtime channel connected", zap.String("url", url))
	return c, nil
}

// Connected reports whether the read loop is still running.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Emit writes one envelope. Writes are rate limited and serialized; a
// context deadline becomes the write deadline.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	if !c.Connected() {
		return realtime.ErrDisconnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// On registers h for inbound events named event.
func (c *Client) On(event string, h realtime.Handler) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]realtime.Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// Close sends a close frame and waits briefly for the read loop to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.writeMu.Unlock()
		select {
		case <-c.done:
		case <-time.After(closeGrace):
		}
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.connected.Store(false)

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("realtime channel read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	c.mu.RLock()
	hs := make([]realtime.Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	if len(hs) == 0 {
		c.logger.Debug("unhandled realtime event", zap.String("event", env.Event))
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}
