package wsconn

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is one live transport connection.
type Conn interface {
	// Read blocks until the next message arrives.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Ping blocks until the peer answers or ctx expires.
	Ping(ctx context.Context) error
	Close(reason string) error
}

// Dialer opens connections. Tests inject fakes to drive the state machine.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with coder/websocket.
type WebsocketDialer struct {
	// ReadLimit caps a single inbound message in bytes.
	ReadLimit int64
	Options   *websocket.DialOptions
}

// Dial opens a websocket connection to url.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}
