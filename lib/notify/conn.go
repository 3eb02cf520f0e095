package notify

import (
	"sync"
	"time"
)

// rawConn is the writer surface of an underlying connection.
// *websocket.Conn satisfies it.
type rawConn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// serialConn guards a raw connection with a write mutex, since the underlying
// websocket permits only one concurrent writer, and stamps every write with a
// deadline so a stalled peer cannot pin the writing goroutine.
type serialConn struct {
	mu      sync.Mutex
	raw     rawConn
	timeout time.Duration
}

// NewConn wraps a raw connection for concurrent use. Every writer of the
// connection must go through the returned Conn.
func NewConn(raw rawConn, writeTimeout time.Duration) Conn {
	return &serialConn{raw: raw, timeout: writeTimeout}
}

func (c *serialConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.raw.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.raw.WriteJSON(v)
}

func (c *serialConn) Close() error {
	return c.raw.Close()
}
