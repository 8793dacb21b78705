package config

import (
	"fmt"
	"os"

	gotoml "github.com/pelletier/go-toml/v2"
)

const templateHeader = `# wbctl client configuration.
# Keys left out keep their defaults; WORTERBUCH_* environment variables
# override the file.
`

// Template renders the default configuration as TOML.
func Template() (string, error) {
	data, err := gotoml.Marshal(toFile(Default()))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(data), nil
}

// Render writes c in the on-disk format.
func Render(c Client) ([]byte, error) {
	return gotoml.Marshal(toFile(c))
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(c Client) fileConfig {
	return fileConfig{
		Name:                  c.Name,
		URL:                   c.URL,
		Proto:                 c.Proto,
		Host:                  c.Host,
		Port:                  c.Port,
		Path:                  c.Path,
		Codec:                 c.Codec,
		EventCapacity:         c.EventCapacity,
		HandshakeTimeout:      c.HandshakeTimeout.String(),
		DialTimeout:           c.DialTimeout.String(),
		WriteTimeout:          c.WriteTimeout.String(),
		SecurityMode:          c.SecurityMode,
		TLSCAFile:             c.TLS.CAFile,
		TLSCertFile:           c.TLS.CertFile,
		TLSKeyFile:            c.TLS.KeyFile,
		TLSServerName:         c.TLS.ServerName,
		TLSInsecureSkipVerify: c.TLS.InsecureSkipVerify,
		AdminAddr:             c.AdminAddr,
		AdminToken:            c.AdminToken,
		CorsOrigins:           c.CorsOrigins,
	}
}
