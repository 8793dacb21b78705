package protocol

import "errors"

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrInvalidCommand = errors.New("protocol: invalid command")
	ErrNilMessage     = errors.New("protocol: nil message")
	ErrUnknownCodec   = errors.New("protocol: unknown codec")
)
