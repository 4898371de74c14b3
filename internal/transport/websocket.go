package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the channel.
const (
	CloseNormal      = websocket.CloseNormalClosure
	CloseGoingAway   = websocket.CloseGoingAway
	CloseAbnormal    = websocket.CloseAbnormalClosure
	CloseNoHeartbeat = 3000
)

// CloseError reports how a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed: code %d", e.Code)
	}
	return fmt.Sprintf("connection closed: code %d: %s", e.Code, e.Reason)
}

// Normal reports whether the close code means the peer closed on purpose.
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormal || e.Code == CloseGoingAway
}

// Conn is one open text-message connection.
// WriteMessage is never called concurrently; Close may be.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens connections. Dial must give up when ctx is done.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer       *websocket.Dialer
	Header       http.Header
	WriteTimeout time.Duration
}

// NewWebsocketDialer returns a dialer using websocket.DefaultDialer settings.
func NewWebsocketDialer() *WebsocketDialer {
	d := *websocket.DefaultDialer
	return &WebsocketDialer{Dialer: &d, WriteTimeout: 10 * time.Second}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", redact(url), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(url), err)
	}
	return &wsConn{c: c, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, &CloseError{Code: CloseAbnormal, Reason: err.Error()}
	}
	return data, nil
}

func (w *wsConn) WriteMessage(data []byte) error {
	if w.writeTimeout > 0 {
		_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.c.Close()
}
