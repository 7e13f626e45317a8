// Package signaling exchanges call-control messages with the remote peer over
// an externally owned event channel.
package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	payload "github.com/HMasataka/counsel/payload/signaling"
)

// Channel is the already-connected, authenticated event channel supplied by
// the session layer. Its lifetime is not owned by this package.
type Channel interface {
	Connected() bool
	Emit(ctx context.Context, event string, data []byte) error
	// Subscribe registers fn for event and returns a function that removes
	// exactly that registration.
	Subscribe(event string, fn func(data []byte)) (unsubscribe func())
}

type TransportOptions struct {
	// SelfID is stamped into fromUserId of every outgoing message.
	SelfID string
	Logger *slog.Logger
}

// Transport is a narrow send/receive adapter over a Channel. It holds at most
// one channel subscription per message type no matter how many handlers are
// registered for that type.
type Transport struct {
	ch       Channel
	selfID   string
	logger   *slog.Logger
	registry HandlerRegistry

	mu            sync.Mutex
	unsubscribers map[payload.MessageType]func()
}

func NewTransport(ch Channel, options TransportOptions) *Transport {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		ch:            ch,
		selfID:        options.SelfID,
		logger:        logger,
		registry:      NewHandlerRegistry(),
		unsubscribers: make(map[payload.MessageType]func()),
	}
}

func (t *Transport) SelfID() string {
	return t.selfID
}

// Send emits msg. It returns false without an error when the channel is not
// connected or the emit fails; delivery is best-effort and never retried.
func (t *Transport) Send(ctx context.Context, msg *payload.Message) bool {
	if msg == nil {
		return false
	}

	if !t.ch.Connected() {
		t.logger.Warn("signaling channel not connected, message dropped",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID))
		return false
	}

	msg.FromUserID = t.selfID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error("failed to marshal signaling message", slog.String("error", err.Error()))
		return false
	}

	if err := t.ch.Emit(ctx, string(msg.Type), data); err != nil {
		t.logger.Warn("failed to emit signaling message",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID),
			slog.String("error", err.Error()))
		return false
	}

	return true
}

// OnMessage registers h for messageType. The caller owns the returned id and
// must pass it to OffMessage when it detaches.
func (t *Transport) OnMessage(messageType payload.MessageType, h Handler) HandlerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, first := t.registry.Register(messageType, h)
	if first {
		t.unsubscribers[messageType] = t.ch.Subscribe(string(messageType), func(data []byte) {
			t.dispatch(messageType, data)
		})
	}

	return id
}

func (t *Transport) OffMessage(messageType payload.MessageType, id HandlerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed, last := t.registry.Unregister(messageType, id)
	if !removed || !last {
		return
	}

	if unsubscribe, ok := t.unsubscribers[messageType]; ok {
		unsubscribe()
		delete(t.unsubscribers, messageType)
	}
}

// Handlers returns how many handlers are registered for messageType.
func (t *Transport) Handlers(messageType payload.MessageType) int {
	return t.registry.Len(messageType)
}

func (t *Transport) dispatch(messageType payload.MessageType, data []byte) {
	var msg payload.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.logger.Warn("failed to unmarshal signaling message",
			slog.String("event", string(messageType)),
			slog.String("error", err.Error()))
		return
	}

	if msg.Type != messageType {
		t.logger.Warn("signaling message type does not match event",
			slog.String("event", string(messageType)),
			slog.String("type", string(msg.Type)))
		return
	}

	if msg.CallID == "" {
		t.logger.Warn("signaling message without callId dropped", slog.String("type", string(msg.Type)))
		return
	}

	ctx := context.Background()
	for _, h := range t.registry.Get(messageType) {
		h(ctx, &msg)
	}
}
