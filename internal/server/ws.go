package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/notify/internal/auth"
	"github.com/alfredjeanlab/notify/internal/idgen"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next frame from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size in either direction.
	maxMessageSize = 8192

	// Outbound payloads buffered per connection before Send fails.
	sendBuffer = 64
)

var (
	errSendQueueFull = errors.New("send queue full")
	errConnClosed    = errors.New("connection closed")
	errFrameTooLarge = errors.New("frame exceeds maximum message size")
)

// wsConn is a presence.Conn over a websocket. All writes go through
// writePump; Send only enqueues.
type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(id string, conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(payload []byte) error {
	if len(payload) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes", errFrameTooLarge, len(payload))
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendQueueFull
	}
}

// Close stops the write pump, which sends a close frame and closes the
// socket. The read pump then fails and unregisters.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// readPump consumes inbound frames only to keep the read deadline fresh.
func (c *wsConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump writes queued payloads, one JSON document per text frame, and
// pings the peer every pingPeriod.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleWebSocket handles GET /ws/message. The token is checked before the
// upgrade so an unauthenticated client never reaches the registry.
func (s *NotifyServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := auth.Verify(s.opts.JWTSecret, auth.StripBearer(token))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := idgen.ConnID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	c := newWSConn(id, conn)
	s.registry.Register(userID, c)
	s.logger.Info("websocket connected", "user_id", userID, "conn_id", id)

	go c.writePump()
	c.readPump()

	c.Close()
	s.registry.UnregisterConn(userID, c)
	s.logger.Info("websocket disconnected", "user_id", userID, "conn_id", id)
}
