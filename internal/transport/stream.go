package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/wbclient/internal/protocol/frame"
)

// StreamConn carries frames over a raw TCP or TLS byte stream. A close frame
// from the peer ends the stream; pings are answered with pongs and still
// surfaced to the reader.
type StreamConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration
	// readErr latches the first failure: after a partial frame the stream
	// position is unknown.
	readErr error

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps an established stream, client or server side.
func NewStreamConn(conn net.Conn, cfg Config) *StreamConn {
	cfg = cfg.WithDefaults()
	return &StreamConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       cfg.Limits,
		writeTimeout: cfg.WriteTimeout,
	}
}

func dialStream(ctx context.Context, ep Endpoint, cfg Config) (Conn, error) {
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", ep, err)
	}
	if !ep.Secure() {
		return NewStreamConn(rawConn, cfg), nil
	}

	tlsCfg, err := cfg.clientTLSConfig(ep.Host)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("transport: tls handshake %s: %w", ep, err)
	}
	return NewStreamConn(conn, cfg), nil
}

func (c *StreamConn) ReadFrame() (frame.Frame, error) {
	if c.readErr != nil {
		return frame.Frame{}, endOfStream(c.readErr)
	}
	f, err := frame.ReadFrame(c.reader, c.limits)
	if err != nil {
		c.readErr = err
		if IsEndOfStream(err) {
			return frame.Frame{}, endOfStream(err)
		}
		return frame.Frame{}, err
	}
	switch f.Kind {
	case frame.KindClose:
		c.readErr = errors.New("transport: peer sent close frame")
		return frame.Frame{}, endOfStream(c.readErr)
	case frame.KindPing:
		_ = c.WriteFrame(frame.Frame{Kind: frame.KindPong, Payload: f.Payload})
	}
	return f, nil
}

// WriteFrame is serialized with the pong replies issued by ReadFrame.
func (c *StreamConn) WriteFrame(f frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return frame.WriteFrame(c.conn, f, c.limits)
}

// Close writes a best-effort close frame and closes the stream.
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		// The deadline also releases a writer blocked on a stalled peer.
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
		c.mu.Lock()
		_ = frame.WriteFrame(c.conn, frame.Frame{Kind: frame.KindClose}, c.limits)
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
