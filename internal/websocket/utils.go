package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 5 * time.Minute
	maxMessage = 16 << 10
)

// Conn serializes writes to a gorilla connection, which supports only one
// concurrent writer. Reads stay on the caller's goroutine.
type Conn struct {
	*websocket.Conn
	mu sync.Mutex
}

// Wrap prepares conn for a session stream.
func Wrap(conn *websocket.Conn) *Conn {
	conn.SetReadLimit(maxMessage)
	return &Conn{Conn: conn}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one frame with a read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.Conn.ReadMessage()
	return data, err
}

// CloseWith sends a close frame with code and reason, then closes the socket.
func (c *Conn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	_ = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.Conn.Close()
}
