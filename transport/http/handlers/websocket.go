package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/realtime"
)

// WebSocketHandler upgrades requests and hands the connection to the
// realtime channel for its whole lifetime.
type WebSocketHandler struct {
	channel  *realtime.Channel
	upgrader websocket.Upgrader
	connOpts []realtime.WSOption
	logger   logger.Logger
}

// NewWebSocketHandler creates a websocket handler. checkOrigin may be nil to
// accept every origin.
func NewWebSocketHandler(channel *realtime.Channel, checkOrigin func(origin string) bool, l logger.Logger, opts ...realtime.WSOption) *WebSocketHandler {
	h := &WebSocketHandler{
		channel:  channel,
		connOpts: opts,
		logger:   logger.OrDiscard(l),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || checkOrigin == nil || checkOrigin(origin)
		},
	}
	return h
}

// Serve handles GET /ws. It blocks until the client goes away.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.logger.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := realtime.NewWSConn(ws, h.connOpts...)
	clientID, err := h.channel.Accept(r.Context(), conn)
	if err != nil {
		h.logger.Warn("Websocket connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn.ReadLoop(r.Context(), h.channel, clientID)
}
