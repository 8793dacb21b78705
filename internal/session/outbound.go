package session

import (
	"fmt"

	"github.com/danmuck/wbclient/internal/protocol/frame"
)

// runOutbound drains the outbox into the transport. Encode or write failure
// closes the outbox and ends the pump; the inbound side keeps running.
func (s *Session) runOutbound() error {
	for {
		cmd, ok := s.queue.pop()
		if !ok {
			s.logger.Debug().Msg("session.outbound.drained")
			return nil
		}

		payload, err := s.codec.Encode(cmd)
		if err != nil {
			s.abortQueue()
			s.stats.inc(statEncodeErrors)
			s.logger.Error().Err(err).Str("command", cmd.Tag()).Msg("session.outbound.encode_failed")
			return fmt.Errorf("%w: %s: %w", ErrEncode, cmd.Tag(), err)
		}
		if err := s.conn.WriteFrame(frame.Frame{Kind: frame.KindBinary, Payload: payload}); err != nil {
			s.abortQueue()
			if s.stopping() {
				s.logger.Debug().Err(err).Str("command", cmd.Tag()).Msg("session.outbound.write_after_shutdown")
				return nil
			}
			s.stats.inc(statWriteErrors)
			s.logger.Error().Err(err).Str("command", cmd.Tag()).Msg("session.outbound.write_failed")
			return fmt.Errorf("%w: write %s: %w", ErrTransport, cmd.Tag(), err)
		}
		s.stats.inc(statCommandsSent)
	}
}

// abortQueue closes the outbox and drops what is still queued.
func (s *Session) abortQueue() {
	s.queue.close()
	if dropped := s.queue.discard(); dropped > 0 {
		s.logger.Warn().Int("dropped", dropped).Msg("session.outbound.commands_dropped")
	}
}
