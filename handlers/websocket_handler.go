package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bestwork/mlm-system/placement"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origin once it is fixed.
		return true
	},
}

type WebSocketHandler struct {
	hub    *placement.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *placement.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs subscribes the authenticated member to their private event stream,
// where placement notifications are delivered.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	memberID, err := currentMemberID(r)
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.Int("member_id", memberID), slog.Any("error", err))
		return
	}

	client := &placement.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: placement.MemberRoom(memberID),
	}
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
