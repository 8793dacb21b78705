package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/protocol/frame"
)

var (
	ErrTransport         = errors.New("session: transport failure")
	ErrHandshakeAborted  = errors.New("session: handshake aborted")
	ErrUnexpectedMessage = errors.New("session: unexpected message")
	ErrQueueClosed       = errors.New("session: queue closed")
	ErrEncode            = errors.New("session: encode failed")
)

// UnexpectedMessageError is returned when the first frame is not a
// handshake. Message is nil when the frame was not binary.
type UnexpectedMessageError struct {
	Message protocol.ServerMessage
	Kind    frame.Kind
}

func (e *UnexpectedMessageError) Error() string {
	if e.Message == nil {
		return fmt.Sprintf("session: unexpected %s frame during handshake", e.Kind)
	}
	return fmt.Sprintf("session: unexpected message during handshake: %s", e.Message.Tag())
}

func (e *UnexpectedMessageError) Is(target error) bool {
	return target == ErrUnexpectedMessage
}
