package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/HMasataka/counsel/pkg/retry"
	ws "github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

var ErrChannelClosed = errors.New("signaling channel is closed")

type ConnectionOptions struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	Logger         *slog.Logger
}

func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
		PingInterval:   15 * time.Second,
		MaxMessageSize: 512 * 1024, // 512KB
	}
}

// WebSocketChannel is a Channel carrying events as JSON-RPC 2.0
// notifications over a WebSocket: the event name is the method and the event
// data is the params object.
type WebSocketChannel struct {
	conn    *ws.Conn
	rpc     *jsonrpc2.Conn
	options ConnectionOptions
	logger  *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func([]byte)
}

var _ Channel = (*WebSocketChannel)(nil)

func NewWebSocketChannel(ctx context.Context, conn *ws.Conn, options ConnectionOptions) *WebSocketChannel {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &WebSocketChannel{
		conn:    conn,
		options: options,
		logger:  logger,
		subs:    make(map[string]map[uint64]func([]byte)),
	}

	if options.MaxMessageSize > 0 {
		conn.SetReadLimit(options.MaxMessageSize)
	}
	if options.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(options.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(options.ReadTimeout))
		})
	}

	c.rpc = jsonrpc2.NewConn(ctx, wsjsonrpc2.NewObjectStream(conn), c)

	if options.PingInterval > 0 {
		go c.pingLoop()
	}

	return c
}

// Dial opens a channel to url, authenticating with a bearer token.
func Dial(ctx context.Context, url, token string, options ConnectionOptions) (*WebSocketChannel, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := ws.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return NewWebSocketChannel(ctx, conn, options), nil
}

// DialWithRetry dials with exponential backoff until it succeeds, the
// attempts are used up or ctx is done.
func DialWithRetry(ctx context.Context, url, token string, options ConnectionOptions, cfg retry.Config) (*WebSocketChannel, error) {
	d := &dialer{ctx: ctx, url: url, token: token, options: options}
	retry.Run(ctx, cfg, d)

	if d.ch != nil {
		return d.ch, nil
	}
	if d.err == nil {
		d.err = ctx.Err()
	}
	return nil, d.err
}

type dialer struct {
	ctx      context.Context
	url      string
	token    string
	options  ConnectionOptions
	waitNext bool

	ch  *WebSocketChannel
	err error
}

func (d *dialer) DetermineAction() retry.Action {
	if d.ctx.Err() != nil {
		return retry.Abort
	}
	if d.waitNext {
		d.waitNext = false
		return retry.Wait
	}
	return retry.Execute
}

func (d *dialer) Execute(attempt int) bool {
	ch, err := Dial(d.ctx, d.url, d.token, d.options)
	if err == nil {
		d.ch = ch
		return true
	}

	d.err = err
	d.waitNext = true
	if d.options.Logger != nil {
		d.options.Logger.Warn("signaling dial failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
	}
	return !retry.ShouldRetry(err)
}

func (c *WebSocketChannel) Connected() bool {
	select {
	case <-c.rpc.DisconnectNotify():
		return false
	default:
		return true
	}
}

// Done is closed once the underlying connection is gone.
func (c *WebSocketChannel) Done() <-chan struct{} {
	return c.rpc.DisconnectNotify()
}

func (c *WebSocketChannel) Emit(ctx context.Context, event string, data []byte) error {
	if !c.Connected() {
		return ErrChannelClosed
	}
	return c.rpc.Notify(ctx, event, json.RawMessage(data))
}

func (c *WebSocketChannel) Subscribe(event string, fn func(data []byte)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]func([]byte))
	}
	c.subs[event][id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[event], id)
			if len(c.subs[event]) == 0 {
				delete(c.subs, event)
			}
			c.mu.Unlock()
		})
	}
}

// Subscribers returns how many subscriptions exist for event.
func (c *WebSocketChannel) Subscribers(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs[event])
}

func (c *WebSocketChannel) Close() error {
	return c.rpc.Close()
}

// Handle implements jsonrpc2.Handler. Requests are dispatched in arrival
// order on the connection's read goroutine, so subscribers must not block.
func (c *WebSocketChannel) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var data []byte
	if req.Params != nil {
		data = []byte(*req.Params)
	}

	c.mu.RLock()
	fns := make([]func([]byte), 0, len(c.subs[req.Method]))
	for _, fn := range c.subs[req.Method] {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	if len(fns) == 0 {
		c.logger.Debug("no subscriber for event", slog.String("event", req.Method))
	}

	for _, fn := range fns {
		fn(data)
	}

	if req.Notif {
		return
	}

	if err := conn.Reply(ctx, req.ID, map[string]bool{"success": true}); err != nil {
		c.logger.Error("failed to send reply", slog.String("error", err.Error()))
	}
}

func (c *WebSocketChannel) pingLoop() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.rpc.DisconnectNotify():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.options.WriteTimeout)
			if err := c.conn.WriteControl(ws.PingMessage, nil, deadline); err != nil {
				c.logger.Warn("failed to write ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}
