package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the hub's view of one live peer: a send that may fail when
// the peer is gone, and a close. The concrete transport lives in clientConn.
type Connection interface {
	Send(data []byte) error
	Close() error
}

type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *clientConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(websocket.TextMessage, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// closePolicy ends the session with a 1008 policy-violation frame and a
// human-readable reason, the only closure shape handshake failures produce.
func (c *clientConn) closePolicy(reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)

	c.mu.Lock()
	_ = c.rawConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.mu.Unlock()

	_ = c.rawConn.Close()
}

func (c *clientConn) setupRead(limit int64) {
	c.rawConn.SetReadLimit(limit)
	_ = c.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	c.rawConn.SetPongHandler(func(string) error {
		return c.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *clientConn) Close() error {
	return c.rawConn.Close()
}
