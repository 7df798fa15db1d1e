// Package signaling implements the WebSocket control channel clients use
// to authenticate, join groups, and negotiate WebRTC transport (§4.1).
package signaling

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	clientSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // Server.Handler checks the origin before upgrading
}

// connState is a client connection's position in the authentication
// lifecycle (§3 "Client session state machine").
type connState int

const (
	connStateConnected connState = iota
	connStateAuthenticating
	connStateAuthenticated
	connStatePendingGame
	connStateGone
)

// client wraps one WebSocket connection. It exists from upgrade until
// close, independent of whether authentication ever succeeds; once
// authenticated, clientID and the backing session.Session are set.
type client struct {
	conn   *websocket.Conn
	server *Server
	logger zerolog.Logger

	send chan []byte

	mu        sync.Mutex
	state     connState
	clientID  string // == player_id, set once authenticated
	closeOnce sync.Once

	pendingTimer *time.Timer
}

func newClient(conn *websocket.Conn, server *Server, logger zerolog.Logger) *client {
	return &client{
		conn:   conn,
		server: server,
		logger: logger,
		send:   make(chan []byte, clientSendBuffer),
		state:  connStateConnected,
	}
}

func (c *client) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *client) getState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// enqueue writes payload to the client's send buffer without blocking; a
// full buffer indicates a stalled connection and triggers cleanup.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn().Str("client_id", c.clientID).Msg("client send buffer full, dropping connection")
		c.close()
		return false
	}
}

// close closes the underlying connection exactly once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// writePump drains the send channel to the socket and pings on an
// interval, mirroring the teacher's peer write pump.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWithCode sends a WebSocket close frame carrying code before
// tearing down the connection (§4.1.2/§4.1.3's 4000/4002 close codes).
func (c *client) closeWithCode(code int, reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	c.close()
}
