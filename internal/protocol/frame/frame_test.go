package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte(`{"ack":{"transactionId":1}}`)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Kind: KindBinary, Payload: payload}, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := WriteFrame(&buf, Frame{Kind: KindPing}, DefaultLimits()); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Kind != KindBinary || !bytes.Equal(out.Payload, payload) {
		t.Fatalf("frame mismatch: kind=%s payload=%q", out.Kind, out.Payload)
	}
	ping, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read ping: %v", err)
	}
	if ping.Kind != KindPing || len(ping.Payload) != 0 {
		t.Fatalf("unexpected ping frame: %+v", ping)
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on frame boundary, got %v", err)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameRejectsBadMagicAndVersion(t *testing.T) {
	bad := EncodeHeader(Header{Magic: 0xDEADBEEF, Version: Version, Kind: KindBinary})
	if _, err := ReadFrame(bytes.NewReader(bad), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	old := EncodeHeader(Header{Magic: Magic, Version: 9, Kind: KindBinary})
	if _, err := ReadFrame(bytes.NewReader(old), DefaultLimits()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	unknown := EncodeHeader(Header{Magic: Magic, Version: Version, Kind: 0x7})
	if _, err := ReadFrame(bytes.NewReader(unknown), DefaultLimits()); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestReadFramePayloadLimits(t *testing.T) {
	h := EncodeHeader(Header{Magic: Magic, Version: Version, Kind: KindBinary, PayloadLen: 64})
	if _, err := ReadFrame(bytes.NewReader(h), Limits{MaxPayloadBytes: 16}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	truncated := append(h, []byte("short")...)
	if _, err := ReadFrame(bytes.NewReader(truncated), DefaultLimits()); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
	if err := WriteFrame(io.Discard, Frame{Kind: KindBinary, Payload: make([]byte, 32)}, Limits{MaxPayloadBytes: 8}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected write ErrPayloadTooLarge, got %v", err)
	}
}
