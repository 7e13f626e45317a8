// Package signalingtest provides an in-process signaling.Channel for tests.
package signalingtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	payload "github.com/HMasataka/counsel/payload/signaling"
)

var ErrDisconnected = errors.New("channel disconnected")

// Hub routes emitted events to the channel of the message's targetUserId,
// synchronously and in emit order.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]*Channel)}
}

// Channel returns the channel for userID, creating a connected one on first use.
func (h *Hub) Channel(userID string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[userID]; ok {
		return ch
	}

	ch := &Channel{
		hub:       h,
		userID:    userID,
		connected: true,
		subs:      make(map[string]map[uint64]func([]byte)),
	}
	h.channels[userID] = ch
	return ch
}

func (h *Hub) lookup(userID string) (*Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.channels[userID]
	return ch, ok
}

type Channel struct {
	hub    *Hub
	userID string

	mu        sync.RWMutex
	connected bool
	nextID    uint64
	subs      map[string]map[uint64]func([]byte)
	sent      []*payload.Message
}

func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Channel) SetConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

func (c *Channel) Emit(ctx context.Context, event string, data []byte) error {
	if !c.Connected() {
		return ErrDisconnected
	}

	var msg payload.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent = append(c.sent, &msg)
	c.mu.Unlock()

	if target, ok := c.hub.lookup(msg.TargetUserID); ok {
		target.Deliver(event, data)
	}
	return nil
}

func (c *Channel) Subscribe(event string, fn func([]byte)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]func([]byte))
	}
	c.subs[event][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs[event], id)
		c.mu.Unlock()
	}
}

// Deliver hands data to every subscriber of event as if it came off the wire.
func (c *Channel) Deliver(event string, data []byte) {
	c.mu.RLock()
	fns := make([]func([]byte), 0, len(c.subs[event]))
	for _, fn := range c.subs[event] {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(data)
	}
}

// DeliverMessage marshals msg and delivers it under its own type.
func (c *Channel) DeliverMessage(msg *payload.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.Deliver(string(msg.Type), data)
	return nil
}

func (c *Channel) Subscribers(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[event])
}

// Sent returns the messages emitted on this channel so far.
func (c *Channel) Sent() []*payload.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*payload.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentOfType filters Sent by message type.
func (c *Channel) SentOfType(messageType payload.MessageType) []*payload.Message {
	var out []*payload.Message
	for _, msg := range c.Sent() {
		if msg.Type == messageType {
			out = append(out, msg)
		}
	}
	return out
}
