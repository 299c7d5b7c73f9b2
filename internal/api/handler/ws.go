package handler

import (
	"log/slog"
	"net/http"

	"handsup/backend/internal/config"
	"handsup/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  config.ReadBufferSize,
	WriteBufferSize: config.WriteBufferSize,
	// clients are authenticated by token, not by origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the connection and hands it to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	clientID := c.GetString(clientIDKey)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		slog.Warn("websocket upgrade failed", "client", clientID, "err", err)
		return
	}

	client := hub.NewClient(clientID, conn, h.Hub)
	if !h.Hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	client.Run()
}
