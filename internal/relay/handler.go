package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	payload "github.com/HMasataka/counsel/payload/signaling"
	"github.com/HMasataka/logging"
	"github.com/sourcegraph/jsonrpc2"
)

// handler serves one authenticated connection. The method of every request
// is the message type and the params are the message.
type handler struct {
	server *Server
	client *client
}

func (h *handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	logger := h.server.logger.With(slog.String("user_id", h.client.userID), slog.String("method", request.Method))

	if h.client.bucket != nil && h.client.bucket.TakeAvailable(1) == 0 {
		logger.Warn("message dropped, rate limited")
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: ErrRateLimited.Error()})
		return
	}

	messageType := payload.MessageType(request.Method)
	if !messageType.Valid() {
		logger.Warn("unknown method")
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unknown method"})
		return
	}

	if request.Params == nil {
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"})
		return
	}

	var msg payload.Message
	if err := json.Unmarshal(*request.Params, &msg); err != nil {
		logger.Warn("malformed message", slog.String("error", err.Error()))
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()})
		return
	}
	if msg.Type != messageType || msg.CallID == "" {
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "type or callId mismatch"})
		return
	}

	// the sender is whoever authenticated, never what the client claims
	msg.FromUserID = h.client.userID

	if err := h.server.route(ctx, &msg); err != nil {
		h.replyError(ctx, conn, request, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: err.Error()})
		return
	}

	if logging.HasLoggingContext(ctx) {
		h.server.logger.InfoContext(ctx, "message relayed",
			slog.String("type", string(msg.Type)),
			slog.String("call_id", msg.CallID),
			slog.String("from", msg.FromUserID),
			slog.String("to", msg.TargetUserID))
	}

	if request.Notif {
		return
	}
	if err := conn.Reply(ctx, request.ID, map[string]bool{"success": true}); err != nil {
		logger.Error("failed to send reply", slog.String("error", err.Error()))
	}
}

func (h *handler) replyError(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request, jsonErr *jsonrpc2.Error) {
	if request.Notif {
		return
	}
	if err := conn.ReplyWithError(ctx, request.ID, jsonErr); err != nil {
		h.server.logger.Error("failed to send error reply", slog.String("error", err.Error()))
	}
}
