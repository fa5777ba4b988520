// internal/hub/websocket.go
package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/isaac-art/dinamap/internal/logger"
	"golang.org/x/time/rate"
)

const (
	webSocketWriteDeadline = 10 * time.Second
	maxMessageSize         = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Connections are unauthenticated; any page may open one.
		return true
	},
}

// Handler terminates one websocket per player and feeds it into Hub. The
// player id is the {uid} path segment.
type Handler struct {
	Hub    *Hub
	Logger *logger.Logger

	// UpdateRate limits inbound player_update messages per connection.
	// Zero disables the limit.
	UpdateRate  rate.Limit
	UpdateBurst int

	// KeepAlive is the interval of server websocket pings. When set, a
	// client that answers no ping within two intervals is dropped. Zero
	// disables pings and read deadlines.
	KeepAlive time.Duration
}

func NewHandler(h *Hub, logger *logger.Logger) *Handler {
	return &Handler{Hub: h, Logger: logger}
}

// ServeHTTP upgrades the request and runs the client's pumps.
func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("uid")
	if id == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	var limiter *rate.Limiter
	if s.UpdateRate > 0 {
		limiter = rate.NewLimiter(s.UpdateRate, s.UpdateBurst)
	}
	client := NewClient(id, conn, limiter)

	go s.WritePump(client)
	if err := s.Hub.Connect(id, client); err != nil {
		s.Logger.Errorf("Connect %s failed: %v", id, err)
		client.Close()
		return
	}
	go s.ReadPump(client)
}

// ReadPump reads and dispatches frames until the stream ends, then removes
// the client from the hub. It is the only place the transport disconnects a
// client.
func (s *Handler) ReadPump(client *Client) {
	defer func() {
		s.Hub.Release(client.ID, client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	if s.KeepAlive > 0 {
		client.Conn.SetReadDeadline(time.Now().Add(2 * s.KeepAlive))
		client.Conn.SetPongHandler(func(string) error {
			client.Conn.SetReadDeadline(time.Now().Add(2 * s.KeepAlive))
			return nil
		})
	}

	for {
		_, msg, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.Logger.LogEvent("error", "read_error", client.ID, err.Error())
			}
			return
		}
		if s.KeepAlive > 0 {
			client.Conn.SetReadDeadline(time.Now().Add(2 * s.KeepAlive))
		}

		if err := s.Hub.HandleClientMessage(client.ID, client, msg); err != nil {
			s.Logger.LogEvent("warn", "read_error", client.ID, err.Error())
			return
		}
	}
}

// WritePump writes queued frames to the websocket. It exits when the client
// is closed or a write fails; either way the websocket is closed, which also
// ends the read pump.
func (s *Handler) WritePump(client *Client) {
	var tick <-chan time.Time
	if s.KeepAlive > 0 {
		ticker := time.NewTicker(s.KeepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer client.Conn.Close()

	for {
		select {
		case frame, ok := <-client.send:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Logger.LogEvent("warn", "send_failed", client.ID, err.Error())
				client.Close()
				return
			}

		case <-tick:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				return
			}
		}
	}
}
