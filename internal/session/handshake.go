package session

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/protocol/frame"
	"github.com/danmuck/wbclient/internal/transport"
)

// Params are the key syntax parameters announced by the server.
type Params struct {
	ProtocolVersion protocol.ProtocolVersion
	Separator       rune
	Wildcard        rune
	MultiWildcard   rune
}

// Topic joins key segments with the separator.
func (p Params) Topic(segments ...string) string {
	return strings.Join(segments, string(p.Separator))
}

// Negotiate reads exactly one frame from r and returns the parameters from
// the server's handshake. It never reads a second frame.
func Negotiate(r transport.FrameReader, c protocol.Codec) (Params, error) {
	f, err := r.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Params{}, fmt.Errorf("%w: %v", ErrHandshakeAborted, err)
		}
		return Params{}, fmt.Errorf("%w: read handshake: %w", ErrTransport, err)
	}
	if f.Kind != frame.KindBinary {
		return Params{}, &UnexpectedMessageError{Kind: f.Kind}
	}
	msg, err := c.Decode(f.Payload)
	if err != nil {
		return Params{}, err
	}
	hs, ok := msg.(protocol.Handshake)
	if !ok {
		return Params{}, &UnexpectedMessageError{Message: msg, Kind: f.Kind}
	}
	return paramsFromHandshake(hs)
}

func paramsFromHandshake(hs protocol.Handshake) (Params, error) {
	p := Params{ProtocolVersion: hs.ProtocolVersion}
	var err error
	if p.Separator, err = singleRune("separator", hs.Separator); err != nil {
		return Params{}, err
	}
	if p.Wildcard, err = singleRune("wildcard", hs.Wildcard); err != nil {
		return Params{}, err
	}
	if p.MultiWildcard, err = singleRune("multiWildcard", hs.MultiWildcard); err != nil {
		return Params{}, err
	}
	return p, nil
}

func singleRune(field, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: handshake %s %q is not a single character", protocol.ErrMalformed, field, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0, fmt.Errorf("%w: handshake %s is not valid utf-8", protocol.ErrMalformed, field)
	}
	return r, nil
}
