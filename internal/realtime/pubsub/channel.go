// Package pubsub is a realtime.Channel relayed through Redis pub/sub. Each
// event name maps to the Redis channel "<prefix>:<event>" and payloads are
// published as JSON.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatline/internal/realtime"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces the Redis channels.
const DefaultPrefix = "chatline"

const (
	healthInterval   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
)

// Channel is a Redis-backed realtime.Channel.
type Channel struct {
	client    *redis.Client
	prefix    string
	logger    *zap.Logger
	connected atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

var _ realtime.Channel = (*Channel)(nil)

// Dial parses a redis:// or rediss:// URL, connects, and starts a health
// check that keeps Connected current.
func Dial(ctx context.Context, rawURL string, logger *zap.Logger) (*Channel, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(ctx, redis.NewClient(opts), DefaultPrefix, logger)
}

// New wraps an existing client. The client is closed by Close.
func New(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	c := &Channel{
		client: client,
		prefix: prefix,
		logger: logger,
		stop:   make(chan struct{}),
	}
	c.connected.Store(true)
	go c.healthLoop()
	logger.Info("realtime channel connected", zap.String("addr", client.Options().Addr))
	return c, nil
}

// Key returns the Redis channel name for an event.
func (c *Channel) Key(event string) string {
	return c.prefix + ":" + event
}

// Connected reports the outcome of the latest publish or health check.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Emit publishes the JSON-encoded payload on the event's Redis channel.
func (c *Channel) Emit(ctx context.Context, event string, payload any) error {
	if !c.Connected() {
		return realtime.ErrDisconnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	if err := c.client.Publish(ctx, c.Key(event), data).Err(); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// On subscribes to the event's Redis channel and calls h for every message
// until the returned function is called.
func (c *Channel) On(event string, h realtime.Handler) func() {
	ps := c.client.Subscribe(context.Background(), c.Key(event))

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	if _, err := ps.Receive(ctx); err != nil {
		c.logger.Warn("subscribe failed", zap.String("event", event), zap.Error(err))
	}
	cancel()

	go func() {
		for msg := range ps.Channel() {
			h(json.RawMessage(msg.Payload))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				c.logger.Debug("unsubscribe failed", zap.String("event", event), zap.Error(err))
			}
		})
	}
}

// Close stops the health check and closes the client.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.connected.Store(false)
		err = c.client.Close()
	})
	return err
}

func (c *Channel) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), healthInterval)
			err := c.client.Ping(ctx).Err()
			cancel()
			was := c.connected.Swap(err == nil)
			if was && err != nil {
				c.logger.Warn("realtime channel lost", zap.Error(err))
			} else if !was && err == nil {
				c.logger.Info("realtime channel restored")
			}
		case <-c.stop:
			return
		}
	}
}
