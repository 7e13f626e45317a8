package signaling

import (
	"context"
	"sync"

	payload "github.com/HMasataka/counsel/payload/signaling"
	"github.com/samber/lo"
)

// Handler receives one decoded signaling message.
type Handler func(ctx context.Context, msg *payload.Message)

// HandlerID identifies one registration so it can be removed again.
type HandlerID uint64

type HandlerRegistry interface {
	// Register adds h for messageType and reports whether it is the first
	// handler for that type.
	Register(messageType payload.MessageType, h Handler) (id HandlerID, first bool)

	// Unregister removes the handler and reports whether the type has no
	// handlers left.
	Unregister(messageType payload.MessageType, id HandlerID) (removed, last bool)

	Get(messageType payload.MessageType) []Handler

	Len(messageType payload.MessageType) int
}

type registration struct {
	id      HandlerID
	handler Handler
}

type DefaultHandlerRegistry struct {
	mu       sync.RWMutex
	nextID   HandlerID
	handlers map[payload.MessageType][]registration
}

func NewHandlerRegistry() *DefaultHandlerRegistry {
	return &DefaultHandlerRegistry{
		handlers: make(map[payload.MessageType][]registration),
	}
}

func (r *DefaultHandlerRegistry) Register(messageType payload.MessageType, h Handler) (HandlerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	first := len(r.handlers[messageType]) == 0
	r.handlers[messageType] = append(r.handlers[messageType], registration{id: id, handler: h})

	return id, first
}

func (r *DefaultHandlerRegistry) Unregister(messageType payload.MessageType, id HandlerID) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, ok := r.handlers[messageType]
	if !ok {
		return false, false
	}

	kept := lo.Reject(regs, func(reg registration, _ int) bool {
		return reg.id == id
	})
	if len(kept) == len(regs) {
		return false, false
	}

	if len(kept) == 0 {
		delete(r.handlers, messageType)
		return true, true
	}

	r.handlers[messageType] = kept
	return true, false
}

// Get returns a copy of the handlers for messageType in registration order.
func (r *DefaultHandlerRegistry) Get(messageType payload.MessageType) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.handlers[messageType], func(reg registration, _ int) Handler {
		return reg.handler
	})
}

func (r *DefaultHandlerRegistry) Len(messageType payload.MessageType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[messageType])
}
