package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	EnvProto    = "WORTERBUCH_PROTO"
	EnvHost     = "WORTERBUCH_HOST_ADDRESS"
	EnvPort     = "WORTERBUCH_PORT"
	EnvPath     = "WORTERBUCH_PATH"
	EnvCodec    = "WORTERBUCH_CODEC"
	EnvURL      = "WORTERBUCH_URL"
	EnvSecurity = "WORTERBUCH_SECURITY_MODE"

	EnvAdminToken = "WBCTL_ADMIN_TOKEN"
)

// FromEnv returns the defaults with environment overrides applied, i.e.
// ws://localhost:8080/ws unless WORTERBUCH_* variables say otherwise.
func FromEnv() (Client, error) {
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return Client{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WORTERBUCH_* variables that are set and
// non-empty.
func (c *Client) ApplyEnv() error {
	if v, ok := lookup(EnvProto); ok {
		c.Proto = strings.ToLower(v)
	}
	if v, ok := lookup(EnvHost); ok {
		c.Host = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvPort, v, err)
		}
		c.Port = int(port)
	}
	if v, ok := lookup(EnvPath); ok {
		c.Path = v
	}
	if v, ok := lookup(EnvCodec); ok {
		c.Codec = strings.ToLower(v)
	}
	if v, ok := lookup(EnvURL); ok {
		c.URL = v
	}
	if v, ok := lookup(EnvSecurity); ok {
		c.SecurityMode = v
	}
	if v, ok := lookup(EnvAdminToken); ok {
		c.AdminToken = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
