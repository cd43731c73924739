package httpserver

import (
	"errors"
	"log/slog"
	"net"

	"nhooyr.io/websocket"
)

// closeWebsocket sends a close frame and logs failures other than the peer
// having already gone away.
func closeWebsocket(logger *slog.Logger, conn *websocket.Conn, code websocket.StatusCode, reason string) {
	if conn == nil {
		return
	}
	err := conn.Close(code, reason)
	if err == nil || errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1 {
		return
	}
	if logger != nil {
		logger.Debug("websocket close failed", "err", err, "code", code)
	}
}
