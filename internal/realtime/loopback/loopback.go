// Package loopback is an in-process realtime.Channel built on the event bus.
// It stands in for a server: tests and the demo client push inbound events
// with Inject and observe outbound ones on the bus under "rt.out.".
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/realtime"
)

// Bus namespaces used by the loopback channel.
const (
	InboundPrefix  = "rt.in."
	OutboundPrefix = "rt.out."
)

// Channel is an in-process realtime.Channel.
type Channel struct {
	bus       *bus.Bus
	connected atomic.Bool
}

var _ realtime.Channel = (*Channel)(nil)

// New creates a connected loopback channel on b.
func New(b *bus.Bus) *Channel {
	c := &Channel{bus: b}
	c.connected.Store(true)
	return c
}

// Connected reports the simulated connection state.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// SetConnected toggles the simulated connection state.
func (c *Channel) SetConnected(v bool) {
	c.connected.Store(v)
}

// Emit publishes the JSON-encoded payload as "rt.out.<event>".
func (c *Channel) Emit(_ context.Context, event string, payload any) error {
	if !c.Connected() {
		return realtime.ErrDisconnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	c.bus.Publish(bus.Event{Kind: OutboundPrefix + event, Payload: json.RawMessage(data)})
	return nil
}

// Inject delivers an inbound event to registered handlers, as a server would.
func (c *Channel) Inject(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	c.bus.Publish(bus.Event{Kind: InboundPrefix + event, Payload: json.RawMessage(data)})
	return nil
}

// On dispatches inbound events named event to h on a dedicated goroutine
// until the returned function is called.
func (c *Channel) On(event string, h realtime.Handler) func() {
	ch, unsub := c.bus.Subscribe(InboundPrefix+event, 64)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt := <-ch:
				// Prefix match would also catch "typing_stopped" for "typing".
				if evt.Kind != InboundPrefix+event {
					continue
				}
				if data, ok := evt.Payload.(json.RawMessage); ok {
					h(data)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}
