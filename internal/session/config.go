package session

import (
	"strings"
	"time"

	"github.com/danmuck/wbclient/internal/bus"
	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/transport"
)

// Config defines one session.
type Config struct {
	// Name labels logs and metrics.
	Name string
	// URL is only used by Connect.
	URL   string
	Codec protocol.Codec
	// EventCapacity is the event history each subscriber may fall behind by.
	EventCapacity    int
	HandshakeTimeout time.Duration
	// ReadBackoff spaces out consecutive transient read failures.
	ReadBackoff BackoffConfig
	Transport   transport.Config
	// OnDisconnect runs at most once, on the inbound goroutine, when the
	// server ends the session.
	OnDisconnect func()
}

func DefaultConfig() Config {
	return Config{
		Name:             "default",
		URL:              "ws://localhost:8080/ws",
		Codec:            protocol.JSON,
		EventCapacity:    bus.DefaultCapacity,
		HandshakeTimeout: 5 * time.Second,
		ReadBackoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Transport: transport.DefaultConfig(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = d.Name
	}
	if strings.TrimSpace(c.URL) == "" {
		c.URL = d.URL
	}
	if c.Codec == nil {
		c.Codec = d.Codec
	}
	if c.EventCapacity <= 0 {
		c.EventCapacity = d.EventCapacity
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReadBackoff == (BackoffConfig{}) {
		c.ReadBackoff = d.ReadBackoff
	}
	c.Transport = c.Transport.WithDefaults()
	return c
}
