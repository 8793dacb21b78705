package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wbclient/internal/protocol/frame"
	"github.com/danmuck/wbclient/internal/testutil/testlog"
	"github.com/danmuck/wbclient/internal/testutil/tlstest"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
)

func TestParseEndpoint(t *testing.T) {
	testlog.Start(t)

	got, err := ParseEndpoint("WS://localhost:8080/ws")
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}
	want := Endpoint{Scheme: SchemeWS, Host: "localhost", Port: "8080", Path: "/ws"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("endpoint mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "ws://localhost:8080/ws" {
		t.Fatalf("unexpected endpoint string: %q", got.String())
	}

	tlsEp, err := ParseEndpoint("tls://[::1]:9443")
	if err != nil {
		t.Fatalf("parse tls endpoint: %v", err)
	}
	if !tlsEp.Secure() || tlsEp.Address() != "[::1]:9443" {
		t.Fatalf("unexpected tls endpoint: %+v addr=%s", tlsEp, tlsEp.Address())
	}

	cases := map[string]error{
		"http://localhost:8080": ErrUnsupportedScheme,
		"ws://localhost":        ErrInvalidEndpoint,
		"tcp://:9000":           ErrInvalidEndpoint,
		"ws://local host:1":     ErrInvalidEndpoint,
	}
	for raw, want := range cases {
		if _, err := ParseEndpoint(raw); !errors.Is(err, want) {
			t.Fatalf("parse %q: expected %v, got %v", raw, want, err)
		}
	}
}

func TestValidateClient(t *testing.T) {
	testlog.Start(t)

	dev := DefaultConfig()
	if err := dev.ValidateClient(false); err != nil {
		t.Fatalf("development plain endpoint: %v", err)
	}

	prod := DefaultConfig()
	prod.SecurityMode = "Production"
	if err := prod.ValidateClient(false); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	if err := prod.ValidateClient(true); err != nil {
		t.Fatalf("production secure endpoint: %v", err)
	}
	prod.TLS.InsecureSkipVerify = true
	if err := prod.ValidateClient(true); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}

	half := DefaultConfig()
	half.TLS.CertFile = "client.crt"
	if err := half.ValidateClient(true); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}
	half.TLS = TLSConfig{KeyFile: "client.key"}
	if err := half.ValidateClient(true); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}

	bad := DefaultConfig()
	bad.SecurityMode = "staging"
	if err := bad.ValidateClient(true); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
}

func TestDialRejectsPlainEndpointInProduction(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if _, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", cfg); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
}

func TestIsEndOfStream(t *testing.T) {
	testlog.Start(t)

	eos := []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		net.ErrClosed,
		&websocket.CloseError{Code: websocket.CloseNormalClosure},
		endOfStream(errors.New("boom")),
	}
	for _, err := range eos {
		if !IsEndOfStream(err) {
			t.Fatalf("expected end of stream for %v", err)
		}
	}
	if IsEndOfStream(nil) || IsEndOfStream(frame.ErrInvalidMagic) {
		t.Fatalf("unexpected end of stream classification")
	}
	if !errors.Is(endOfStream(errors.New("boom")), io.EOF) {
		t.Fatalf("expected wrapped cause to match io.EOF")
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	testlog.Start(t)

	upgrader := websocket.Upgrader{}
	serverDone := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			serverDone <- err
			return
		}
		conn := NewWebsocketConn(raw, DefaultConfig())
		defer conn.Close()
		if err := conn.WriteFrame(frame.Frame{Kind: frame.KindBinary, Payload: []byte("hello")}); err != nil {
			serverDone <- err
			return
		}
		f, err := conn.ReadFrame()
		if err != nil {
			serverDone <- err
			return
		}
		if f.Kind != frame.KindText || string(f.Payload) != "ping" {
			serverDone <- errors.New("unexpected client frame")
			return
		}
		serverDone <- nil
	}))
	defer srv.Close()

	url := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/ws"
	conn, err := Dial(context.Background(), url, Config{WriteTimeout: time.Second})
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	f, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if diff := cmp.Diff(frame.Frame{Kind: frame.KindBinary, Payload: []byte("hello")}, f); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
	if err := conn.WriteFrame(frame.Frame{Kind: frame.KindText, Payload: []byte("ping")}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}

	// The server closed with a normal closure: end of stream, and it stays that way.
	for i := 0; i < 2; i++ {
		if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
			t.Fatalf("read %d after close: expected io.EOF, got %v", i, err)
		}
	}
}

func TestStreamRoundTripWithPingAndClose(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		conn := NewStreamConn(raw, DefaultConfig())
		defer conn.Close()
		if err := conn.WriteFrame(frame.Frame{Kind: frame.KindBinary, Payload: []byte("state")}); err != nil {
			serverDone <- err
			return
		}
		if err := conn.WriteFrame(frame.Frame{Kind: frame.KindPing, Payload: []byte("p1")}); err != nil {
			serverDone <- err
			return
		}
		f, err := conn.ReadFrame()
		if err != nil {
			serverDone <- err
			return
		}
		if f.Kind != frame.KindPong || string(f.Payload) != "p1" {
			serverDone <- errors.New("expected pong echoing the ping payload")
			return
		}
		serverDone <- nil
	}()

	conn, err := Dial(context.Background(), "tcp://"+ln.Addr().String(), DefaultConfig())
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	f, err := conn.ReadFrame()
	if err != nil || f.Kind != frame.KindBinary || string(f.Payload) != "state" {
		t.Fatalf("unexpected first frame: %+v err=%v", f, err)
	}
	f, err = conn.ReadFrame()
	if err != nil || f.Kind != frame.KindPing {
		t.Fatalf("expected ping surfaced to reader: %+v err=%v", f, err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server: %v", err)
	}
	if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after close frame, got %v", err)
	}
	if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected latched io.EOF, got %v", err)
	}
}

func TestStreamInvalidFrameThenEndOfStream(t *testing.T) {
	testlog.Start(t)

	client, server := net.Pipe()
	defer server.Close()
	conn := NewStreamConn(client, DefaultConfig())
	defer conn.Close()

	go func() {
		garbage := make([]byte, frame.FixedHeaderLen)
		_, _ = server.Write(garbage)
	}()

	_, err := conn.ReadFrame()
	if !errors.Is(err, frame.ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	if IsEndOfStream(err) {
		t.Fatalf("invalid frame must not be end of stream")
	}
	if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after latched failure, got %v", err)
	}
}

func TestTLSStreamVerifiesServer(t *testing.T) {
	testlog.Start(t)

	bundle := tlstest.New(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", bundle.ServerConfig())
	if err != nil {
		t.Fatalf("listen tls: %v", err)
	}
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		conn := NewStreamConn(raw, DefaultConfig())
		_ = conn.WriteFrame(frame.Frame{Kind: frame.KindBinary, Payload: []byte("secure")})
		_ = conn.Close()
	}()

	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	cfg.TLS.CAFile = bundle.CAFile
	conn, err := Dial(context.Background(), "tls://"+ln.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial tls: %v", err)
	}
	defer conn.Close()

	f, err := conn.ReadFrame()
	if err != nil || string(f.Payload) != "secure" {
		t.Fatalf("unexpected tls frame: %+v err=%v", f, err)
	}
	if _, err := conn.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestTLSStreamRejectsUnknownAuthority(t *testing.T) {
	testlog.Start(t)

	bundle := tlstest.New(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", bundle.ServerConfig())
	if err != nil {
		t.Fatalf("listen tls: %v", err)
	}
	defer ln.Close()
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		_ = raw.(*tls.Conn).Handshake()
		_ = raw.Close()
	}()

	if _, err := Dial(context.Background(), "tls://"+ln.Addr().String(), DefaultConfig()); err == nil {
		t.Fatalf("expected handshake failure without the test ca")
	}
}
