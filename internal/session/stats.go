package session

import (
	"sync/atomic"

	"github.com/danmuck/wbclient/internal/observability"
)

const (
	statCommandsSent    = "commands_sent"
	statEventsPublished = "events_published"
	statDecodeErrors    = "decode_errors"
	statReadErrors      = "read_errors"
	statUndelivered     = "undelivered"
	statControlFrames   = "control_frames"
	statEncodeErrors    = "encode_errors"
	statWriteErrors     = "write_errors"
	statDisconnects     = "disconnects"
)

// Stats is a snapshot of a session's pump counters.
type Stats struct {
	CommandsSent    uint64 `json:"commands_sent"`
	EventsPublished uint64 `json:"events_published"`
	DecodeErrors    uint64 `json:"decode_errors"`
	ReadErrors      uint64 `json:"read_errors"`
	Undelivered     uint64 `json:"undelivered"`
	ControlFrames   uint64 `json:"control_frames"`
	EncodeErrors    uint64 `json:"encode_errors"`
	WriteErrors     uint64 `json:"write_errors"`
	Disconnects     uint64 `json:"disconnects"`
	QueuedCommands  int    `json:"queued_commands"`
	Subscribers     int    `json:"subscribers"`
}

type counters struct {
	name            string
	commandsSent    atomic.Uint64
	eventsPublished atomic.Uint64
	decodeErrors    atomic.Uint64
	readErrors      atomic.Uint64
	undelivered     atomic.Uint64
	controlFrames   atomic.Uint64
	encodeErrors    atomic.Uint64
	writeErrors     atomic.Uint64
	disconnects     atomic.Uint64
}

func (c *counters) inc(kind string) {
	switch kind {
	case statCommandsSent:
		c.commandsSent.Add(1)
	case statEventsPublished:
		c.eventsPublished.Add(1)
	case statDecodeErrors:
		c.decodeErrors.Add(1)
	case statReadErrors:
		c.readErrors.Add(1)
	case statUndelivered:
		c.undelivered.Add(1)
	case statControlFrames:
		c.controlFrames.Add(1)
	case statEncodeErrors:
		c.encodeErrors.Add(1)
	case statWriteErrors:
		c.writeErrors.Add(1)
	case statDisconnects:
		c.disconnects.Add(1)
	}
	observability.RecordSessionEvent(c.name, kind)
}

func (c *counters) snapshot() Stats {
	return Stats{
		CommandsSent:    c.commandsSent.Load(),
		EventsPublished: c.eventsPublished.Load(),
		DecodeErrors:    c.decodeErrors.Load(),
		ReadErrors:      c.readErrors.Load(),
		Undelivered:     c.undelivered.Load(),
		ControlFrames:   c.controlFrames.Load(),
		EncodeErrors:    c.encodeErrors.Load(),
		WriteErrors:     c.writeErrors.Load(),
		Disconnects:     c.disconnects.Load(),
	}
}
