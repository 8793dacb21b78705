package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wbclient/internal/bus"
	"github.com/danmuck/wbclient/internal/observability"
	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Session is a live connection after a successful handshake. All methods
// are safe for concurrent use.
type Session struct {
	params Params
	conn   transport.Conn
	codec  protocol.Codec
	logger zerolog.Logger

	queue  *outbox
	events *bus.Bus[protocol.ServerMessage]
	// keepAlive holds the bus open for the lifetime of the session so that
	// publishing never fails for lack of subscribers.
	keepAlive *bus.Receiver[protocol.ServerMessage]

	readBackoff BackoffConfig
	stats       *counters
	nextTID     atomic.Uint64

	group          errgroup.Group
	err            error
	done           chan struct{}
	disconnected   chan struct{}
	disconnectOnce sync.Once
	onDisconnect   func()
	stop           chan struct{}
	stopOnce       sync.Once
}

// Connect dials cfg.URL and establishes a session on it. The transport is
// closed if the handshake fails.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	conn, err := transport.Dial(ctx, cfg.URL, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrTransport, cfg.URL, err)
	}
	return New(ctx, conn, cfg)
}

// New negotiates the handshake on conn and starts both pumps. New takes
// ownership of conn: it is closed on failure and by Shutdown.
func New(ctx context.Context, conn transport.Conn, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()
	logger := log.With().
		Str("component", "session").
		Str("session", cfg.Name).
		Str("remote", conn.RemoteAddr()).
		Logger()

	params, err := negotiate(ctx, conn, cfg)
	if err != nil {
		_ = conn.Close()
		logger.Error().Err(err).Msg("session.handshake_failed")
		return nil, err
	}
	logger.Info().
		Str("protocol_version", params.ProtocolVersion.String()).
		Str("separator", string(params.Separator)).
		Str("wildcard", string(params.Wildcard)).
		Str("multi_wildcard", string(params.MultiWildcard)).
		Str("codec", cfg.Codec.Name()).
		Msg("session.established")

	s := &Session{
		params:       params,
		conn:         conn,
		codec:        cfg.Codec,
		logger:       logger,
		queue:        newOutbox(func(n int) { observability.SetQueuedCommands(cfg.Name, n) }),
		events:       bus.New[protocol.ServerMessage](cfg.EventCapacity),
		readBackoff:  cfg.ReadBackoff,
		stats:        &counters{name: cfg.Name},
		done:         make(chan struct{}),
		disconnected: make(chan struct{}),
		onDisconnect: cfg.OnDisconnect,
		stop:         make(chan struct{}),
	}
	s.keepAlive = s.events.Subscribe()

	s.group.Go(s.runOutbound)
	s.group.Go(s.runInbound)
	go func() {
		s.err = s.group.Wait()
		close(s.done)
	}()
	return s, nil
}

// negotiate bounds the handshake by ctx and cfg.HandshakeTimeout. Closing
// the transport is the only way to interrupt a blocked read.
func negotiate(ctx context.Context, conn transport.Conn, cfg Config) (Params, error) {
	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	release := context.AfterFunc(hctx, func() { _ = conn.Close() })

	params, err := Negotiate(conn, cfg.Codec)
	if !release() {
		err = fmt.Errorf("%w: %w", ErrHandshakeAborted, context.Cause(hctx))
	}
	observability.RecordHandshake(cfg.Name, err == nil, time.Since(start))
	return params, err
}

// Submit queues cmd for sending. It never blocks on the network.
func (s *Session) Submit(cmd protocol.ClientMessage) error {
	if cmd == nil {
		return protocol.ErrNilMessage
	}
	return s.queue.push(cmd)
}

// Subscribe returns a receiver that sees every event published from now on.
// Callers should Close it when done.
func (s *Session) Subscribe() *bus.Receiver[protocol.ServerMessage] {
	return s.events.Subscribe()
}

func (s *Session) Params() Params      { return s.params }
func (s *Session) Separator() rune     { return s.params.Separator }
func (s *Session) Wildcard() rune      { return s.params.Wildcard }
func (s *Session) MultiWildcard() rune { return s.params.MultiWildcard }

// CloseSend stops accepting commands. Commands already queued are still
// written, then the outbound pump exits.
func (s *Session) CloseSend() {
	s.queue.close()
}

// Shutdown stops both pumps and closes the transport. The disconnect
// callback does not fire for a local shutdown. It returns ctx.Err() if the
// pumps have not exited before ctx is done.
func (s *Session) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("session.shutdown")
		close(s.stop)
		s.abortQueue()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("session.shutdown.close_failed")
		}
		s.keepAlive.Close()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once both pumps have exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Disconnected is closed when the server ends the session.
func (s *Session) Disconnected() <-chan struct{} { return s.disconnected }

// Wait blocks until both pumps have exited and returns the first pump error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

func (s *Session) Stats() Stats {
	st := s.stats.snapshot()
	st.QueuedCommands = s.queue.pending()
	st.Subscribers = s.events.Receivers()
	return st
}

func (s *Session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// IsDisconnect reports whether err means the session can no longer be used.
func IsDisconnect(err error) bool {
	return errors.Is(err, ErrQueueClosed) || errors.Is(err, bus.ErrClosed)
}
