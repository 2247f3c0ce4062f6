package streamsocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// frameConn is the subset of *websocket.Conn the connector depends on, so
// tests can substitute a fake without opening a real socket.
type frameConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a frameConn to url. The production dialer wraps
// gorilla/websocket; tests inject a fake.
type Dialer func(ctx context.Context, url string) (frameConn, error)

// DefaultDialer dials with gorilla/websocket's default dialer under a
// bounded open timeout.
func DefaultDialer(ctx context.Context, url string) (frameConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
