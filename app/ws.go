package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/ticketguy/Keepshot/lib/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribe upgrades the request to a WebSocket and registers it with the
// notification dispatcher until the peer goes away.
func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	userID := parseInt(chi.URLParam(r, "user_id"))
	if userID == 0 {
		ctrl.reject(w, http.StatusBadRequest, nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ctrl.log.Sugar().Warnw("WebSocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// All writes go through the wrapper: the dispatcher delivers from check
	// goroutines while this loop echoes, and the websocket allows only one
	// writer at a time.
	wsConn := notify.NewConn(conn, writeWait)
	connID := ctrl.dispatcher.Register(userID, wsConn)
	defer func() {
		ctrl.dispatcher.Unregister(userID, connID)
		wsConn.Close()
	}()

	// Read loop keeps the connection alive and detects disconnects; client
	// messages are echoed back as a ping/pong convenience.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := wsConn.WriteJSON(map[string]string{"type": "pong", "data": string(data)}); err != nil {
			return
		}
	}
}
