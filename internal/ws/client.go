package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn is the hub-facing side of a live connection. Everything above the
// transport (registry, router, session) talks to this interface, which keeps
// the fan-out and protocol logic testable without a socket.
type conn interface {
	writeJSON(v any) error
	close()
}

type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex
}

func (c *clientConn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(v)
}

func (c *clientConn) ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *clientConn) close() {
	_ = c.rawConn.Close()
}
