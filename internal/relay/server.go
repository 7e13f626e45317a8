// Package relay is a signaling relay: it authenticates users, keeps one
// WebSocket per user and forwards call-control messages between them.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	payload "github.com/HMasataka/counsel/payload/signaling"
	"github.com/HMasataka/logging"
	ws "github.com/gorilla/websocket"
	"github.com/juju/ratelimit"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrNotInCall   = errors.New("sender is not a party to the call")
)

type Options struct {
	Secret []byte

	// Rate is the sustained messages per second allowed on one connection,
	// Burst the bucket capacity. A zero Rate disables limiting.
	Rate  float64
	Burst int64

	AllowedOrigins []string
	MaxMessageSize int64
	Logger         *slog.Logger
}

type client struct {
	userID string
	rpc    *jsonrpc2.Conn
	bucket *ratelimit.Bucket
}

// callRecord remembers the two parties of an offer so that untargeted
// messages and disconnects can be routed.
type callRecord struct {
	caller string
	callee string
}

func (r callRecord) has(userID string) bool {
	return userID == r.caller || userID == r.callee
}

func (r callRecord) other(userID string) string {
	if userID == r.caller {
		return r.callee
	}
	return r.caller
}

type Server struct {
	options  Options
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	calls   map[string]callRecord
}

func NewServer(options Options) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		options: options,
		logger:  logger,
		clients: make(map[string]*client),
		calls:   make(map[string]callRecord),
	}
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler serves /ws and /health behind CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("GET /health", s.health)

	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

func (s *Server) allowedOrigins() []string {
	if len(s.options.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.options.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	origins := s.allowedOrigins()
	return origin == "" || lo.Contains(origins, "*") || lo.Contains(origins, origin)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	online := len(s.clients)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "online": online})
}

// ServeWS authenticates the request and upgrades it to a relay connection.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseToken(s.options.Secret, tokenFromRequest(r))
	if err != nil {
		s.logger.Warn("rejected connection", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", slog.String("error", err.Error()))
		return
	}
	if s.options.MaxMessageSize > 0 {
		conn.SetReadLimit(s.options.MaxMessageSize)
	}

	c := &client{userID: userID}
	if s.options.Rate > 0 {
		c.bucket = ratelimit.NewBucketWithRate(s.options.Rate, s.options.Burst)
	}
	ctx := logging.WithValue(context.Background(), "user_id", userID)
	c.rpc = jsonrpc2.NewConn(ctx, wsjsonrpc2.NewObjectStream(conn), &handler{server: s, client: c})

	s.join(c)

	go func() {
		<-c.rpc.DisconnectNotify()
		s.leave(c)
	}()
}

// Online reports whether userID has a live connection.
func (s *Server) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[userID]
	return ok
}

// Close drops every connection.
func (s *Server) Close() {
	s.mu.RLock()
	clients := lo.Values(s.clients)
	s.mu.RUnlock()

	for _, c := range clients {
		c.rpc.Close()
	}
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	old := s.clients[c.userID]
	s.clients[c.userID] = c
	s.mu.Unlock()

	if old != nil {
		s.logger.Info("replacing connection", slog.String("user_id", c.userID))
		old.rpc.Close()
	}
	s.logger.Info("user connected", slog.String("user_id", c.userID))
}

// leave forgets c and ends the calls it was part of. A connection that was
// already replaced leaves the calls alone.
func (s *Server) leave(c *client) {
	s.mu.Lock()
	if s.clients[c.userID] != c {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.userID)

	ended := make(map[string]string)
	for callID, rec := range s.calls {
		if rec.caller == c.userID || rec.callee == c.userID {
			ended[callID] = rec.other(c.userID)
			delete(s.calls, callID)
		}
	}
	s.mu.Unlock()

	s.logger.Info("user disconnected", slog.String("user_id", c.userID), slog.Int("open_calls", len(ended)))

	for callID, other := range ended {
		msg, err := payload.NewEndMessage(callID, other, payload.ReasonDisconnect)
		if err != nil {
			continue
		}
		msg.FromUserID = c.userID
		s.deliver(context.Background(), other, msg)
	}
}

func (s *Server) client(userID string) *client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[userID]
}

func (s *Server) deliver(ctx context.Context, userID string, msg *payload.Message) bool {
	c := s.client(userID)
	if c == nil {
		return false
	}

	if err := c.rpc.Notify(ctx, string(msg.Type), msg); err != nil {
		s.logger.Warn("failed to deliver message",
			slog.String("to", userID),
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// route forwards msg from its sender and keeps the call records current.
// Messages for a recorded call are only accepted from its two parties and
// always go to the other one.
func (s *Server) route(ctx context.Context, msg *payload.Message) error {
	from := msg.FromUserID

	s.mu.Lock()
	rec, known := s.calls[msg.CallID]
	target := msg.TargetUserID
	if known {
		if !rec.has(from) || (target != "" && target != rec.other(from)) {
			s.mu.Unlock()
			s.logger.Warn("message from outside the call dropped",
				slog.String("type", string(msg.Type)),
				slog.String("call_id", msg.CallID),
				slog.String("from", from),
				slog.String("to", target))
			return ErrNotInCall
		}
		target = rec.other(from)
		msg.TargetUserID = target
	}

	switch msg.Type {
	case payload.MessageTypeOffer:
		if target != "" && !known {
			s.calls[msg.CallID] = callRecord{caller: from, callee: target}
		}
	case payload.MessageTypeCallReject, payload.MessageTypeCallEnd:
		delete(s.calls, msg.CallID)
	}
	s.mu.Unlock()

	if target == "" {
		s.logger.Warn("message without target dropped",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID))
		return nil
	}

	if s.deliver(ctx, target, msg) {
		return nil
	}

	s.logger.Info("target offline",
		slog.String("type", string(msg.Type)),
		slog.String("call_id", msg.CallID),
		slog.String("target", target))

	if msg.Type != payload.MessageTypeOffer || known {
		return nil
	}

	s.mu.Lock()
	delete(s.calls, msg.CallID)
	s.mu.Unlock()

	reject, err := payload.NewRejectMessage(msg.CallID, from, payload.ReasonOffline)
	if err != nil {
		return nil
	}
	reject.FromUserID = target
	s.deliver(ctx, from, reject)
	return nil
}

// Calls returns how many calls the relay is tracking.
func (s *Server) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}
