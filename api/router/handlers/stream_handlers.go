package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"netsentry/logger"
)

const (
	streamWriteWait   = 10 * time.Second
	streamPingPeriod  = 30 * time.Second
	streamBufferSize  = 4096
	maxStreamMsgBytes = 512
)

// streamHandler upgrades the connection to a websocket and pushes engine
// events (observed URLs, security log entries, status changes) to the client
// as they happen. A slow client misses messages rather than stalling the
// engine.
func streamHandler(w http.ResponseWriter, r *http.Request) {
	if authRequired {
		token := bearerToken(r)
		if token == "" || identity.UserIDForToken(token) == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized: invalid or missing token")
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  streamBufferSize,
		WriteBufferSize: streamBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("streamHandler: Websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxStreamMsgBytes)

	messages, cancel := engine.Broadcaster().Subscribe()
	defer cancel()

	logger.Info("Stream client connected from %s", r.RemoteAddr)

	// Reader goroutine: the client sends nothing meaningful, but reads must
	// drain control frames and surface disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			logger.Info("Stream client %s disconnected", r.RemoteAddr)
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug("streamHandler: Write to %s failed: %v", r.RemoteAddr, err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
