package session

import (
	"errors"
	"io"
	"time"

	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/protocol/frame"
)

// runInbound reads frames until the stream ends and publishes decoded
// events. Per-frame failures are counted and skipped. The bus is closed on
// exit so subscribers drain and then see bus.ErrClosed.
func (s *Session) runInbound() error {
	defer s.events.Close()

	pacer := newReadPacer(s.readBackoff)
	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.stopping() {
					s.logger.Debug().Msg("session.inbound.closed")
					return nil
				}
				s.disconnect("end_of_stream", err)
				return nil
			}
			s.stats.inc(statReadErrors)
			attempt, delay := pacer.fail()
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("session.inbound.read_failed")
			if !s.pause(delay) {
				return nil
			}
			continue
		}
		pacer.reset()

		if f.Kind != frame.KindBinary {
			s.stats.inc(statControlFrames)
			continue
		}
		msg, err := s.codec.Decode(f.Payload)
		if err != nil {
			s.stats.inc(statDecodeErrors)
			s.logger.Warn().Err(err).Int("bytes", len(f.Payload)).Msg("session.inbound.decode_failed")
			continue
		}
		if _, ok := msg.(protocol.EndOfSession); ok {
			s.disconnect("end_of_session", nil)
			return nil
		}
		if _, err := s.events.Publish(msg); err != nil {
			// Only possible once the keep-alive receiver is released.
			s.stats.inc(statUndelivered)
			s.logger.Debug().Err(err).Str("event", msg.Tag()).Msg("session.inbound.undelivered")
			continue
		}
		s.stats.inc(statEventsPublished)
	}
}

// pause waits d or until shutdown. It reports false on shutdown.
func (s *Session) pause(d time.Duration) bool {
	if d <= 0 {
		return !s.stopping()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Session) disconnect(reason string, cause error) {
	s.disconnectOnce.Do(func() {
		s.stats.inc(statDisconnects)
		event := s.logger.Info().Str("reason", reason)
		if cause != nil {
			event = event.AnErr("cause", cause)
		}
		event.Msg("session.disconnected")
		close(s.disconnected)
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	})
}
