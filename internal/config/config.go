package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wbclient/internal/bus"
	"github.com/danmuck/wbclient/internal/protocol"
	"github.com/danmuck/wbclient/internal/session"
	"github.com/danmuck/wbclient/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Client is the resolved configuration of one wbctl process.
type Client struct {
	Name string
	// URL wins over Proto, Host, Port and Path when set.
	URL              string
	Proto            string
	Host             string
	Port             int
	Path             string
	Codec            string
	EventCapacity    int
	HandshakeTimeout time.Duration
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	SecurityMode     string
	TLS              transport.TLSConfig
	// AdminAddr enables the admin HTTP surface when non-empty.
	AdminAddr string
	// AdminToken, when set, is required as a bearer token on /stats and /metrics.
	AdminToken  string
	CorsOrigins []string
}

// fileConfig is the on-disk shape. Durations are Go duration strings.
type fileConfig struct {
	Name                  string   `toml:"name"`
	URL                   string   `toml:"url"`
	Proto                 string   `toml:"proto"`
	Host                  string   `toml:"host"`
	Port                  int      `toml:"port"`
	Path                  string   `toml:"path"`
	Codec                 string   `toml:"codec"`
	EventCapacity         int      `toml:"event_capacity"`
	HandshakeTimeout      string   `toml:"handshake_timeout"`
	DialTimeout           string   `toml:"dial_timeout"`
	WriteTimeout          string   `toml:"write_timeout"`
	SecurityMode          string   `toml:"security_mode"`
	TLSCAFile             string   `toml:"tls_ca_file"`
	TLSCertFile           string   `toml:"tls_cert_file"`
	TLSKeyFile            string   `toml:"tls_key_file"`
	TLSServerName         string   `toml:"tls_server_name"`
	TLSInsecureSkipVerify bool     `toml:"tls_insecure_skip_verify"`
	AdminAddr             string   `toml:"admin_addr"`
	AdminToken            string   `toml:"admin_token"`
	CorsOrigins           []string `toml:"cors_origins"`
}

func Default() Client {
	return Client{
		Name:             "wbctl",
		Proto:            transport.SchemeWS,
		Host:             "localhost",
		Port:             8080,
		Path:             "/ws",
		Codec:            protocol.CodecJSON,
		EventCapacity:    bus.DefaultCapacity,
		HandshakeTimeout: 5 * time.Second,
		DialTimeout:      5 * time.Second,
		SecurityMode:     string(transport.SecurityModeDevelopment),
		CorsOrigins:      []string{"http://localhost:3000"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
func Load(path string) (Client, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	if err := cfg.applyFile(meta, raw); err != nil {
		return Client{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Client{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c *Client) applyFile(meta toml.MetaData, raw fileConfig) error {
	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			c.Name = name
		}
	}
	if meta.IsDefined("url") {
		c.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("proto") {
		c.Proto = strings.ToLower(strings.TrimSpace(raw.Proto))
	}
	if meta.IsDefined("host") {
		c.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		c.Port = raw.Port
	}
	if meta.IsDefined("path") {
		c.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("codec") {
		c.Codec = strings.ToLower(strings.TrimSpace(raw.Codec))
	}
	if meta.IsDefined("event_capacity") {
		c.EventCapacity = raw.EventCapacity
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"handshake_timeout", raw.HandshakeTimeout, &c.HandshakeTimeout},
		{"dial_timeout", raw.DialTimeout, &c.DialTimeout},
		{"write_timeout", raw.WriteTimeout, &c.WriteTimeout},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if meta.IsDefined("security_mode") {
		c.SecurityMode = strings.TrimSpace(raw.SecurityMode)
	}
	if meta.IsDefined("tls_ca_file") {
		c.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_cert_file") {
		c.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		c.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_server_name") {
		c.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		c.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	if meta.IsDefined("admin_addr") {
		c.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		c.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		c.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	return nil
}

// Endpoint returns URL, or the address assembled from Proto, Host, Port and Path.
func (c Client) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	path := c.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", c.Proto, c.Host, c.Port, path)
}

func (c Client) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.DialTimeout = c.DialTimeout
	cfg.WriteTimeout = c.WriteTimeout
	cfg.SecurityMode = transport.SecurityMode(c.SecurityMode)
	cfg.TLS = c.TLS
	return cfg.WithDefaults()
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	ep, err := transport.ParseEndpoint(c.Endpoint())
	if err != nil {
		return fmt.Errorf("%w: endpoint: %w", ErrInvalidConfig, err)
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.EventCapacity <= 0 {
		return fmt.Errorf("%w: event_capacity must be positive", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake_timeout must be positive", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 || c.DialTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if err := c.TransportConfig().ValidateClient(ep.Secure()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// SessionConfig converts a validated Client into a session configuration.
func (c Client) SessionConfig(onDisconnect func()) (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}
	codec, err := protocol.CodecByName(c.Codec)
	if err != nil {
		return session.Config{}, err
	}
	cfg := session.DefaultConfig()
	cfg.Name = c.Name
	cfg.URL = c.Endpoint()
	cfg.Codec = codec
	cfg.EventCapacity = c.EventCapacity
	cfg.HandshakeTimeout = c.HandshakeTimeout
	cfg.Transport = c.TransportConfig()
	cfg.OnDisconnect = onDisconnect
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
