// Package transport provides the framed duplex byte-stream a session runs on.
//
// Ownership boundary:
//   - endpoint parsing and dialing (ws, wss, tcp, tls)
//   - frame mapping (websocket messages and repo frames share frame.Frame)
//   - end-of-stream classification: every terminal read condition surfaces as
//     an error matching io.EOF, anything else is a per-read failure
//
// A Conn supports one concurrent reader and one concurrent writer. Close may
// be called at any time from any goroutine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/wbclient/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

const (
	SchemeWS  = "ws"
	SchemeWSS = "wss"
	SchemeTCP = "tcp"
	SchemeTLS = "tls"
)

var (
	ErrUnsupportedScheme = errors.New("transport: unsupported scheme")
	ErrInvalidEndpoint   = errors.New("transport: invalid endpoint")
)

// FrameReader is the read half of a Conn.
type FrameReader interface {
	// ReadFrame blocks for the next frame. Errors matching io.EOF mean the
	// stream is over; later calls keep returning io.EOF.
	ReadFrame() (frame.Frame, error)
}

// FrameWriter is the write half of a Conn.
type FrameWriter interface {
	WriteFrame(f frame.Frame) error
}

type Conn interface {
	FrameReader
	FrameWriter
	Close() error
	RemoteAddr() string
}

// Config holds dial and I/O settings shared by all schemes.
type Config struct {
	DialTimeout time.Duration
	// WriteTimeout bounds a single frame write. Zero disables it.
	WriteTimeout time.Duration
	SecurityMode SecurityMode
	TLS          TLSConfig
	Limits       frame.Limits
	// Header is sent with the websocket upgrade request.
	Header map[string][]string
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		SecurityMode: SecurityModeDevelopment,
		Limits:       frame.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if strings.TrimSpace(string(c.SecurityMode)) == "" {
		c.SecurityMode = d.SecurityMode
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	return c
}

// Endpoint is a parsed scheme://host:port/path address.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	Path   string
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

func (e Endpoint) Secure() bool {
	return e.Scheme == SchemeWSS || e.Scheme == SchemeTLS
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s%s", e.Scheme, e.Address(), e.Path)
}

// ParseEndpoint validates a URL-like endpoint. The port is required.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case SchemeWS, SchemeWSS, SchemeTCP, SchemeTLS:
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" || port == "" {
		return Endpoint{}, fmt.Errorf("%w: %q needs host and port", ErrInvalidEndpoint, raw)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: port, Path: u.EscapedPath()}, nil
}

// Dial connects to raw and returns a ready Conn. ws/wss perform the
// websocket upgrade; tcp/tls speak the repo frame format directly.
func Dial(ctx context.Context, raw string, cfg Config) (Conn, error) {
	cfg = cfg.WithDefaults()
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(ep.Secure()); err != nil {
		return nil, err
	}
	switch ep.Scheme {
	case SchemeWS, SchemeWSS:
		return dialWebsocket(ctx, ep, cfg)
	default:
		return dialStream(ctx, ep, cfg)
	}
}

// IsEndOfStream reports whether err means the peer or the local side ended
// the stream, as opposed to a failure of one read.
func IsEndOfStream(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}

// endOfStream wraps cause so that it matches io.EOF and still prints the cause.
func endOfStream(cause error) error {
	if cause == nil || errors.Is(cause, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("%w: %v", io.EOF, cause)
}
