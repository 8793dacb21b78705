package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/wbclient/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebsocketConn adapts a gorilla connection to Conn. Ping, pong and close
// control frames are handled by gorilla; only text and binary messages are
// surfaced as frames.
type WebsocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	// readErr latches the first read failure. gorilla treats every read
	// error as permanent, so later reads report end-of-stream.
	readErr   error
	closeOnce sync.Once
	closeErr  error
}

// NewWebsocketConn wraps an established connection, client or server side.
func NewWebsocketConn(conn *websocket.Conn, cfg Config) *WebsocketConn {
	if cfg.Limits.MaxPayloadBytes > 0 {
		conn.SetReadLimit(int64(cfg.Limits.MaxPayloadBytes))
	}
	return &WebsocketConn{conn: conn, writeTimeout: cfg.WriteTimeout}
}

func dialWebsocket(ctx context.Context, ep Endpoint, cfg Config) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	if ep.Secure() {
		tlsCfg, err := cfg.clientTLSConfig(ep.Host)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	conn, resp, err := dialer.DialContext(ctx, ep.String(), http.Header(cfg.Header))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: websocket upgrade %s: status=%d: %w", ep, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: websocket dial %s: %w", ep, err)
	}
	return NewWebsocketConn(conn, cfg), nil
}

func (c *WebsocketConn) ReadFrame() (frame.Frame, error) {
	if c.readErr != nil {
		return frame.Frame{}, endOfStream(c.readErr)
	}
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		c.readErr = err
		if IsEndOfStream(err) {
			return frame.Frame{}, endOfStream(err)
		}
		return frame.Frame{}, err
	}
	return frame.Frame{Kind: frame.Kind(mt), Payload: data}, nil
}

func (c *WebsocketConn) WriteFrame(f frame.Frame) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(int(f.Kind), f.Payload)
}

// Close sends a normal-closure control frame and closes the socket.
func (c *WebsocketConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WebsocketConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
