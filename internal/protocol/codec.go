package protocol

import (
	"fmt"
	"strings"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec converts messages to and from frame payloads.
//
// Decode returns EndOfSession for an empty payload and an error wrapping
// ErrMalformed for anything it cannot map onto a known ServerMessage.
type Codec interface {
	Name() string
	Encode(msg ClientMessage) ([]byte, error)
	Decode(data []byte) (ServerMessage, error)
}

// CodecByName resolves a configured codec name. Empty selects json.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON, nil
	case CodecCBOR:
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// format is one serialization backend for tagged envelopes.
type format struct {
	name      string
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
	// split decodes the outer single-key envelope without touching the body.
	split func(data []byte) (map[string][]byte, error)
}

// EnvelopeCodec implements Codec, plus the server-side directions used by
// test servers, on top of one format.
type EnvelopeCodec struct {
	f format
}

func (c EnvelopeCodec) Name() string { return c.f.name }

func (c EnvelopeCodec) Encode(msg ClientMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return c.encodeTagged(msg.Tag(), msg)
}

// EncodeServer writes a server message. EndOfSession encodes to an empty payload.
func (c EnvelopeCodec) EncodeServer(msg ServerMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if _, ok := msg.(EndOfSession); ok {
		return []byte{}, nil
	}
	return c.encodeTagged(msg.Tag(), msg)
}

func (c EnvelopeCodec) encodeTagged(tag string, body any) ([]byte, error) {
	data, err := c.f.marshal(map[string]any{tag: body})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s as %s: %w", tag, c.f.name, err)
	}
	return data, nil
}

func (c EnvelopeCodec) Decode(data []byte) (ServerMessage, error) {
	if len(data) == 0 {
		return EndOfSession{}, nil
	}
	tag, body, err := c.open(data)
	if err != nil {
		return nil, err
	}
	var msg ServerMessage
	switch tag {
	case tagHandshake:
		msg, err = decodeAs[Handshake](c.f, body)
	case tagState:
		msg, err = decodeAs[State](c.f, body)
	case tagPState:
		msg, err = decodeAs[PState](c.f, body)
	case tagAck:
		msg, err = decodeAs[Ack](c.f, body)
	case tagErr:
		msg, err = decodeAs[Err](c.f, body)
	case tagLsState:
		msg, err = decodeAs[LsState](c.f, body)
	default:
		return nil, fmt.Errorf("%w: unknown server message %q", ErrMalformed, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return msg, nil
}

// DecodeClient reads a client message, as a server would.
func (c EnvelopeCodec) DecodeClient(data []byte) (ClientMessage, error) {
	tag, body, err := c.open(data)
	if err != nil {
		return nil, err
	}
	var msg ClientMessage
	switch tag {
	case tagGet:
		msg, err = decodeAs[Get](c.f, body)
	case tagPGet:
		msg, err = decodeAs[PGet](c.f, body)
	case tagSet:
		msg, err = decodeAs[Set](c.f, body)
	case tagPublish:
		msg, err = decodeAs[Publish](c.f, body)
	case tagSubscribe:
		msg, err = decodeAs[Subscribe](c.f, body)
	case tagPSubscribe:
		msg, err = decodeAs[PSubscribe](c.f, body)
	case tagUnsubscribe:
		msg, err = decodeAs[Unsubscribe](c.f, body)
	case tagDelete:
		msg, err = decodeAs[Delete](c.f, body)
	case tagPDelete:
		msg, err = decodeAs[PDelete](c.f, body)
	case tagLs:
		msg, err = decodeAs[Ls](c.f, body)
	default:
		return nil, fmt.Errorf("%w: unknown client message %q", ErrMalformed, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return msg, nil
}

func (c EnvelopeCodec) open(data []byte) (string, []byte, error) {
	env, err := c.f.split(data)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("%w: envelope has %d keys", ErrMalformed, len(env))
	}
	for tag, body := range env {
		return tag, body, nil
	}
	return "", nil, ErrMalformed
}

func decodeAs[T any](f format, body []byte) (T, error) {
	var v T
	err := f.unmarshal(body, &v)
	return v, err
}
