package session

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/protocol/frame"
)

type readResult struct {
	frame frame.Frame
	err   error
}

// fakeConn is a scripted transport. Reads come from the script channel;
// closing the script or the conn ends the stream.
type fakeConn struct {
	script chan readResult
	writes chan frame.Frame

	mu       sync.Mutex
	writeErr error
	reads    int

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		script: make(chan readResult, 4096),
		writes: make(chan frame.Frame, 4096),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (frame.Frame, error) {
	select {
	case <-c.closed:
		return frame.Frame{}, io.EOF
	default:
	}
	select {
	case r, ok := <-c.script:
		if !ok {
			return frame.Frame{}, io.EOF
		}
		c.mu.Lock()
		c.reads++
		c.mu.Unlock()
		return r.frame, r.err
	case <-c.closed:
		return frame.Frame{}, io.EOF
	}
}

func (c *fakeConn) WriteFrame(f frame.Frame) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.writes <- f
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake:0" }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// pushMessage scripts one binary frame carrying msg.
func (c *fakeConn) pushMessage(t testing.TB, msg protocol.ServerMessage) {
	t.Helper()
	payload, err := protocol.JSON.EncodeServer(msg)
	if err != nil {
		t.Fatalf("encode server message: %v", err)
	}
	c.script <- readResult{frame: frame.Frame{Kind: frame.KindBinary, Payload: payload}}
}

func (c *fakeConn) pushFrame(f frame.Frame) {
	c.script <- readResult{frame: f}
}

func (c *fakeConn) pushError(err error) {
	c.script <- readResult{err: err}
}

// endStream makes every later read return io.EOF.
func (c *fakeConn) endStream() {
	close(c.script)
}

func (c *fakeConn) nextWrite(t testing.TB) frame.Frame {
	t.Helper()
	select {
	case f := <-c.writes:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a written frame")
		return frame.Frame{}
	}
}

func standardHandshake() protocol.Handshake {
	return protocol.Handshake{
		ProtocolVersion: protocol.ProtocolVersion{Major: 0, Minor: 11},
		Separator:       "/",
		Wildcard:        "+",
		MultiWildcard:   "#",
	}
}

func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitClosed(t testing.TB, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
