// Package push owns the persistent push connection used to deliver execution
// events as they occur. The manager is an explicit instance with a lifecycle,
// injected into callers; nothing here is process-global.
package push

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the minimal full-duplex connection the manager needs. Production
// uses a websocket; tests swap in an in-memory fake.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or a transport error.
	ReadMessage() ([]byte, error)
	// WriteJSON sends one outbound frame.
	WriteJSON(v any) error
	// Close tears the connection down; a blocked ReadMessage returns an error.
	Close() error
}

// Dialer opens a Conn to the given endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()

	return payload, err
}

func (c *wsConn) WriteJSON(v any) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebSocketDialer returns the production dialer.
func WebSocketDialer() Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		if err != nil {
			return nil, err
		}

		return &wsConn{conn: conn}, nil
	}
}
